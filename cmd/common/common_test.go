package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestConfigureCLI(t *testing.T) {
	t.Setenv("BIDDERTEST_CHAIN_ID", "5")
	t.Setenv("BIDDERTEST_ENDPOINT", "$BIDDERTEST_HOST:8545")
	t.Setenv("BIDDERTEST_HOST", "http://localhost")

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	ConfigureCLI(v, "BIDDERTEST", []Flag{
		{Name: "chain-id", DefValue: int64(1), Description: "Chain id"},
		{Name: "endpoint", DefValue: "", Description: "Endpoint"},
		{Name: "gas-margin", DefValue: uint64(10000), Description: "Gas margin"},
		{Name: "update-freq", DefValue: time.Second * 12, Description: "Update frequency"},
		{Name: "log-debug", DefValue: false, Description: "Debug"},
	}, fs)

	require.NoError(t, fs.Parse([]string{"--update-freq=3s"}))
	ExpandEnvVars(v, v.AllSettings())

	require.Equal(t, int64(5), v.GetInt64("chain-id"))
	require.Equal(t, "http://localhost:8545", v.GetString("endpoint"))
	require.Equal(t, uint64(10000), v.GetUint64("gas-margin"))
	require.Equal(t, time.Second*3, v.GetDuration("update-freq"))
	require.False(t, v.GetBool("log-debug"))
}

func TestMarshalConfigMasksSecrets(t *testing.T) {
	v := viper.New()
	v.Set("private-key", "deadbeef")
	v.Set("chain-id", 1)
	v.Set("api-key", "")

	b, err := MarshalConfig(v, false, "private-key", "api-key")
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "***", m["private-key"])
	require.Equal(t, "", m["api-key"])
	require.Equal(t, float64(1), m["chain-id"])
}
