package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// dataError matches JSON-RPC errors that carry revert data (rpc.DataError).
type dataError interface {
	ErrorData() interface{}
}

// RevertReason extracts the Error(string) reason from a failed call or gas
// estimation. It prefers the ABI-encoded error data and falls back to the
// node's message text.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var de dataError
	if errors.As(err, &de) {
		if reason, ok := unpackRevertData(de.ErrorData()); ok {
			return reason, true
		}
	}
	msg := err.Error()
	if !strings.Contains(msg, "revert") {
		return "", false
	}
	return ExtractRevertReason(msg), true
}

func unpackRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch v := data.(type) {
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = v
	default:
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}

// ExtractRevertReason tries to pull the revert reason out of an RPC error message.
func ExtractRevertReason(errMsg string) string {
	// Common pattern: "execution reverted: <reason>"
	if idx := strings.Index(errMsg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(errMsg[idx+len("execution reverted:"):])
	}
	if idx := strings.Index(errMsg, "reverted with reason string"); idx >= 0 {
		return strings.Trim(strings.TrimSpace(errMsg[idx+len("reverted with reason string"):]), "'\"")
	}
	return strings.TrimSpace(errMsg)
}
