package category

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func writeMapping(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "merchant-category-mapping.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// touchForward bumps the file's mtime so the store notices an external edit.
func touchForward(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestOpen_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mapping.json")

	store, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, store.Entries())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(data))
}

func TestOpen_RejectsInvalidJSON(t *testing.T) {
	path := writeMapping(t, `{"broken":`)
	_, err := Open(path)
	assert.Error(t, err)
}

func TestFindCategory_ExactBeatsSubstring(t *testing.T) {
	path := writeMapping(t, `{"NTUC": "Food", "NTUC FP-CLEMENTI": "Shopping"}`)
	store, err := Open(path)
	require.NoError(t, err)

	category, ok := store.FindCategory("NTUC FP-CLEMENTI")
	require.True(t, ok)
	assert.Equal(t, "Shopping", category)
}

func TestFindCategory_CaseInsensitiveSubstring(t *testing.T) {
	path := writeMapping(t, `{"ShengSiong": "Expenses:Food:Groceries"}`)
	store, err := Open(path)
	require.NoError(t, err)

	category, ok := store.FindCategory("Shengsiong Express")
	require.True(t, ok)
	assert.Equal(t, "Expenses:Food:Groceries", category)
}

func TestFindCategory_KeyContainsMerchant(t *testing.T) {
	path := writeMapping(t, `{"GRAB* TRANSPORT SINGAPORE": "Expenses:Transport"}`)
	store, err := Open(path)
	require.NoError(t, err)

	category, ok := store.FindCategory("grab* transport")
	require.True(t, ok)
	assert.Equal(t, "Expenses:Transport", category)
}

func TestFindCategory_FirstMatchInFileOrder(t *testing.T) {
	path := writeMapping(t, `{"COFFEE": "Expenses:Food:Coffee", "BEAN": "Expenses:Food:Beans"}`)
	store, err := Open(path)
	require.NoError(t, err)

	category, ok := store.FindCategory("COFFEE BEAN & TEA LEAF")
	require.True(t, ok)
	assert.Equal(t, "Expenses:Food:Coffee", category)
}

func TestFindCategory_UnresolvedNeverMatches(t *testing.T) {
	path := writeMapping(t, `{"ACME": ""}`)
	store, err := Open(path)
	require.NoError(t, err)

	_, ok := store.FindCategory("ACME")
	assert.False(t, ok)
	_, ok = store.FindCategory("ACME CORP")
	assert.False(t, ok)
}

func TestFindCategory_NotFound(t *testing.T) {
	store, err := Open(writeMapping(t, `{"NTUC": "Food"}`))
	require.NoError(t, err)

	_, ok := store.FindCategory("GAMMA.APP")
	assert.False(t, ok)
	_, ok = store.FindCategory("")
	assert.False(t, ok)
}

func TestFindCategory_ReloadsExternalEdits(t *testing.T) {
	path := writeMapping(t, `{"ACME": ""}`)
	store, err := Open(path)
	require.NoError(t, err)

	_, ok := store.FindCategory("ACME")
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte(`{"ACME": "Expenses:Shopping"}`), 0600))
	touchForward(t, path)

	category, ok := store.FindCategory("ACME")
	require.True(t, ok)
	assert.Equal(t, "Expenses:Shopping", category)
}

func TestFindCategory_KeepsMappingWhenReloadFails(t *testing.T) {
	path := writeMapping(t, `{"ACME": "Expenses:Shopping"}`)
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0600))
	touchForward(t, path)

	category, ok := store.FindCategory("ACME")
	require.True(t, ok)
	assert.Equal(t, "Expenses:Shopping", category)
}

func TestAddUnresolvedMerchant_UpsertPreservesOrder(t *testing.T) {
	path := writeMapping(t, `{"NTUC": "Food"}`)
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.AddUnresolvedMerchant("ACME", ""))
	require.NoError(t, store.AddUnresolvedMerchant("ACME", ""))
	require.NoError(t, store.AddUnresolvedMerchant("GAMMA.APP", "Expenses:Software"))
	require.NoError(t, store.AddUnresolvedMerchant("ACME", "Expenses:Shopping:Misc"))

	assert.Equal(t, []Entry{
		{Merchant: "NTUC", Category: "Food"},
		{Merchant: "ACME", Category: "Expenses:Shopping:Misc"},
		{Merchant: "GAMMA.APP", Category: "Expenses:Software"},
	}, store.Entries())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Expenses:Software", gjson.GetBytes(data, gjson.Escape("GAMMA.APP")).String())
}

func TestAddUnresolvedMerchant_SpecialCharacters(t *testing.T) {
	store, err := Open(writeMapping(t, `{}`))
	require.NoError(t, err)

	merchant := "GRAB*RIDE 12.34 #5 @SG"
	require.NoError(t, store.AddUnresolvedMerchant(merchant, "Expenses:Transport"))

	category, ok := store.FindCategory(merchant)
	require.True(t, ok)
	assert.Equal(t, "Expenses:Transport", category)
}

func TestAddUnresolvedMerchant_RejectsEmpty(t *testing.T) {
	store, err := Open(writeMapping(t, `{}`))
	require.NoError(t, err)
	assert.ErrorIs(t, store.AddUnresolvedMerchant("  ", "x"), ErrEmptyMerchant)
}

func TestAddUnresolvedMerchant_KeepsExternalEdits(t *testing.T) {
	path := writeMapping(t, `{}`)
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"MANUAL": "Expenses:Gifts"}`), 0600))
	require.NoError(t, store.AddUnresolvedMerchant("ACME", ""))

	category, ok := store.FindCategory("MANUAL")
	require.True(t, ok)
	assert.Equal(t, "Expenses:Gifts", category)
}

func TestCategories_DistinctNonEmpty(t *testing.T) {
	store, err := Open(writeMapping(t, `{"A": "Food", "B": "", "C": "Transport", "D": "Food"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"Food", "Transport"}, store.Categories())
}
