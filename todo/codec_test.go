package todo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/omalloc/ember/api/todo"
	"github.com/omalloc/ember/storage"
)

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]string{"": "json", "JSON": "json", "yml": "yaml", "cbor": "cbor"} {
		c, err := CodecByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, c.Name())
	}

	_, err := CodecByName("xml")
	assert.Error(t, err)
}

func TestCodec_StoreSurvivesReload(t *testing.T) {
	for _, codec := range []api.Codec{JSONCodec{}, YAMLCodec{}, CBORCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			kv := storage.NewMemoryStore()
			s := newStore(t, kv, WithCodec(codec))
			_, _ = s.Create("first")
			res, err := s.Create("second")
			require.NoError(t, err)
			_, err = s.ToggleComplete(res.Tasks[1].ID)
			require.NoError(t, err)

			reloaded := newStore(t, kv, WithCodec(codec))
			assert.Equal(t, s.Tasks(), reloaded.Tasks())
		})
	}
}

func TestCodec_EmptyCollectionEncodesAsList(t *testing.T) {
	data, err := JSONCodec{}.Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	tasks, err := JSONCodec{}.Unmarshal([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCodec_FieldNames(t *testing.T) {
	data, err := JSONCodec{}.Marshal([]api.Task{{ID: "a", Text: "x", Completed: true}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","text":"x","completed":true}]`, string(data))

	data, err = YAMLCodec{}.Marshal([]api.Task{{ID: "a", Text: "x"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), "completed: false")
}

func TestCodec_MalformedIsEmptyForEveryCodec(t *testing.T) {
	for _, codec := range []api.Codec{JSONCodec{}, YAMLCodec{}, CBORCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			kv := storage.NewMemoryStore()
			require.NoError(t, kv.Set(DefaultKey, []byte{0xff, 0x00, 0x7b}))
			assert.Empty(t, newStore(t, kv, WithCodec(codec)).Tasks())
		})
	}
}

func TestWellFormed(t *testing.T) {
	assert.True(t, wellFormed(nil))
	assert.True(t, wellFormed([]api.Task{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}}))
	assert.False(t, wellFormed([]api.Task{{ID: "a", Text: "x"}, {ID: "a", Text: "y"}}))
	assert.False(t, wellFormed([]api.Task{{ID: "", Text: "x"}}))
	assert.False(t, wellFormed([]api.Task{{ID: "a", Text: " "}}))
}
