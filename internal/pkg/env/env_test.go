package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv_PrefersLoadedMap(t *testing.T) {
	Env = map[string]string{"CD_TEST_KEY": "from-map"}
	t.Setenv("CD_TEST_KEY", "from-os")
	assert.Equal(t, "from-map", GetEnv("CD_TEST_KEY", "def"))

	delete(Env, "CD_TEST_KEY")
	assert.Equal(t, "from-os", GetEnv("CD_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("CD_TEST_MISSING", "def"))
}

func TestGetEnvInt(t *testing.T) {
	Env = map[string]string{"CD_INT": "42", "CD_BAD": "x"}
	assert.Equal(t, 42, GetEnvInt("CD_INT", 1))
	assert.Equal(t, 1, GetEnvInt("CD_BAD", 1))
	assert.Equal(t, 7, GetEnvInt("CD_NONE", 7))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			Env = map[string]string{"CD_BOOL": tt.value}
			if tt.value == "" {
				Env = map[string]string{}
			}
			assert.Equal(t, tt.want, GetEnvBool("CD_BOOL", tt.def))
		})
	}
}

func TestIsDev(t *testing.T) {
	Env = map[string]string{"APP_ENV": "dev"}
	assert.True(t, IsDev())
	Env = map[string]string{"APP_ENV": "prod"}
	assert.False(t, IsDev())
}
