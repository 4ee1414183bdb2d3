package token

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeClaimSet はペイロードからクレーム集合への変換を検証する。
func TestDecodeClaimSet(t *testing.T) {
	t.Parallel()

	t.Run("キーの出現順が保たれること", func(t *testing.T) {
		t.Parallel()

		got, err := decodeClaimSet([]byte(`{"z":"1","a":"2","m":"3"}`))
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "a", "m"}, claimNames(got))
	})

	t.Run("配列が要素ごとのクレームに展開されること", func(t *testing.T) {
		t.Parallel()

		got, err := decodeClaimSet([]byte(`{"role":["admin","buyer",3]}`))
		require.NoError(t, err)
		assert.Equal(t, ClaimSet{
			{Name: "role", Value: "admin"},
			{Name: "role", Value: "buyer"},
			{Name: "role", Value: "3"},
		}, got)
	})

	t.Run("文字列以外の値がコンパクトなJSON表現になること", func(t *testing.T) {
		t.Parallel()

		got, err := decodeClaimSet([]byte(`{"n": 42, "b": true, "o": { "k" : "v" }, "x": null}`))
		require.NoError(t, err)
		assert.Equal(t, ClaimSet{
			{Name: "n", Value: "42"},
			{Name: "b", Value: "true"},
			{Name: "o", Value: `{"k":"v"}`},
			{Name: "x", Value: "null"},
		}, got)
	})

	t.Run("重複したキーは最後の値のみが採用されること", func(t *testing.T) {
		t.Parallel()

		got, err := decodeClaimSet([]byte(`{"role":"admin","sub":"u","role":["viewer","buyer"]}`))
		require.NoError(t, err)
		assert.Equal(t, ClaimSet{
			{Name: "sub", Value: "u"},
			{Name: "role", Value: "viewer"},
			{Name: "role", Value: "buyer"},
		}, got)

		var std map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{"role":"admin","role":"viewer"}`), &std))
		got, err = decodeClaimSet([]byte(`{"role":"admin","role":"viewer"}`))
		require.NoError(t, err)
		assert.Equal(t, ClaimSet{{Name: "role", Value: std["role"].(string)}}, got)
	})

	t.Run("JSONオブジェクト以外はエラーになること", func(t *testing.T) {
		t.Parallel()

		for _, payload := range []string{`[]`, `"x"`, ``, `{"a":`} {
			_, err := decodeClaimSet([]byte(payload))
			assert.Error(t, err, payload)
		}
	})
}

// TestMintedClaimsMarshalJSON は内部トークンのペイロード生成を検証する。
func TestMintedClaimsMarshalJSON(t *testing.T) {
	t.Parallel()

	t.Run("同名のクレームが初出位置の配列として出力されること", func(t *testing.T) {
		t.Parallel()

		payload, err := json.Marshal(mintedClaims{claims: ClaimSet{
			{Name: "sub", Value: "u"},
			{Name: "role", Value: "admin"},
			{Name: "email", Value: "e"},
			{Name: "role", Value: "buyer"},
		}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"sub":"u","role":["admin","buyer"],"email":"e"}`, string(payload))

		got, err := decodeClaimSet(payload)
		require.NoError(t, err)
		assert.Equal(t, []string{"sub", "role", "email"}, claimNames(got))
	})
}
