package users

import (
	"errors"
	"testing"

	"github.com/samvad-hq/userloader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResponse struct {
	body []byte
}

func (s *stubResponse) Body() []byte    { return s.body }
func (s *stubResponse) StatusCode() int { return 200 }

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		path    string
		want    []string
		wantErr bool
	}{
		{
			name: "array at root",
			body: `[{"id":1,"name":"Leanne Graham"},{"id":2,"name":"Ervin Howell"}]`,
			want: []string{"Leanne Graham", "Ervin Howell"},
		},
		{
			name: "array with path",
			body: `{"data":[{"id":1,"name":"Leanne Graham"}]}`,
			path: "data",
			want: []string{"Leanne Graham"},
		},
		{
			name: "single object",
			body: `{"id":3,"name":"Clementine Bauch"}`,
			want: []string{"Clementine Bauch"},
		},
		{
			name: "empty array",
			body: `[]`,
			want: []string{},
		},
		{
			name:    "path not found",
			body:    `{"other":[]}`,
			path:    "data",
			wantErr: true,
		},
		{
			name:    "invalid json",
			body:    `{invalid`,
			wantErr: true,
		},
		{
			name:    "scalar",
			body:    `"hello"`,
			wantErr: true,
		},
		{
			name:    "array of scalars",
			body:    `[1,2]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body), tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Names(got))
		})
	}
}

func TestDecodeScalarIsErrNoUsers(t *testing.T) {
	_, err := Decode([]byte(`42`), "")
	assert.True(t, errors.Is(err, ErrNoUsers))
}

func TestDecodeKeepsFields(t *testing.T) {
	got, err := Decode([]byte(`[{"id":1,"name":"Leanne Graham","username":"Bret","email":"Sincere@april.biz"}]`), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.User{ID: 1, Name: "Leanne Graham", Username: "Bret", Email: "Sincere@april.biz"}, got[0])
}

func TestCheck(t *testing.T) {
	check := Check("")
	assert.NoError(t, check(&stubResponse{body: []byte(`[]`)}))
	assert.Error(t, check(&stubResponse{body: []byte(`<html>`)}))
}

func TestFromResponseNil(t *testing.T) {
	got, err := FromResponse(nil, "")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestNamesSkipsBlank(t *testing.T) {
	assert.Equal(t, []string{"a"}, Names([]domain.User{{Name: " "}, {Name: "a"}}))
}
