package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "local", cfg.Env)
	require.Equal(t, time.Hour, cfg.Auth.AccessTTL())
	require.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL())
	require.False(t, cfg.Auth.StrictRoles)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MEDIDESK_HTTP_ADDR", ":9090")
	t.Setenv("MEDIDESK_TOKEN_EXPIRY", "120")
	t.Setenv("MEDIDESK_JWT_SECRET", "s1")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTP.Addr)
	require.Equal(t, 2*time.Minute, cfg.Auth.AccessTTL())
	require.Equal(t, "s1", cfg.Auth.AccessSecret)
}

func TestExpiryFallback(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Hour},
		{"1h", time.Hour},
		{"-30", time.Hour},
		{"0", time.Hour},
		{"abc", time.Hour},
		{"90", 90 * time.Second},
	}
	for _, tc := range cases {
		a := Auth{AccessExpiry: tc.raw}
		require.Equalf(t, tc.want, a.AccessTTL(), "raw=%q", tc.raw)
	}
}
