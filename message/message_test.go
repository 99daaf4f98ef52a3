package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/socialgate/errors"
)

func TestNew(t *testing.T) {
	m, err := New("m1", "hello world", "author-1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "author-1", m.AuthorID)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		author  string
		wantErr bool
	}{
		{name: "valid", text: "hi", author: "a"},
		{name: "empty text", text: "", author: "a", wantErr: true},
		{name: "missing author", text: "hi", author: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("m1", tt.text, tt.author)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}
