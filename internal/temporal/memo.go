package temporal

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

const memoLimitBytes = 2048

// RunMemo is attached to each pipeline run workflow so runs can be
// inspected from the Temporal UI without replaying history.
type RunMemo struct {
	RunID      string   `toml:"run_id"`
	Pipeline   string   `toml:"pipeline"`
	Activities []string `toml:"activities"`
	Parameters []string `toml:"parameters,omitempty"`
}

func SerializeRunMemo(memo *RunMemo) (string, error) {
	if memo == nil {
		return "", nil
	}
	var buffer bytes.Buffer
	if err := toml.NewEncoder(&buffer).Encode(memo); err != nil {
		return "", err
	}
	return truncateMemo(buffer.Bytes()), nil
}

func DeserializeRunMemo(data string) (*RunMemo, error) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return nil, fmt.Errorf("run memo is empty")
	}
	var memo RunMemo
	if _, err := toml.Decode(trimmed, &memo); err != nil {
		return nil, fmt.Errorf("unable to parse run memo: %w", err)
	}
	return &memo, nil
}

func truncateMemo(data []byte) string {
	if len(data) <= memoLimitBytes {
		return string(data)
	}
	if memoLimitBytes <= 3 {
		return string(data[:memoLimitBytes])
	}
	return string(data[:memoLimitBytes-3]) + "..."
}
