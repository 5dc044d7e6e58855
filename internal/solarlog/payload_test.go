package solarlog

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) Payload {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

func TestRegistersMissingKeys(t *testing.T) {
	tests := []struct {
		name string
		body string
		path []string
	}{
		{"missing group", `{"802":{}}`, []string{"801"}},
		{"missing key", `{"801":{"171":{}}}`, []string{"801", "170"}},
		{"null group", `{"801":null}`, []string{"801"}},
		{"null registers", `{"801":{"170":null}}`, []string{"801", "170"}},
		{"registers not an object", `{"801":{"170":[1,2]}}`, []string{"801", "170"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.body).Registers()

			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.path, malformed.Path)
		})
	}
}

func TestRegistersTypedAccess(t *testing.T) {
	registers, err := decode(t, `{"801":{"170":{"100":"15.08.18 10:58:45","101":12.5,"102":null,"103":"x","104":"12","105":true}}}`).Registers()
	require.NoError(t, err)

	ts, err := registers.String("100")
	require.NoError(t, err)
	assert.Equal(t, "15.08.18 10:58:45", ts)

	v, err := registers.Number("101")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, json.Number("12.5"), *v)

	v, err = registers.Number("102")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = registers.Number("116")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = registers.Number("103")
	assert.Error(t, err)

	_, err = registers.Number("104")
	assert.Error(t, err, "quoted numbers are not numbers")

	_, err = registers.Number("105")
	assert.Error(t, err)

	_, err = registers.String("101")
	assert.Error(t, err)

	_, err = registers.String("999")
	assert.Error(t, err)
}
