package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}

func TestNewStoreRejectsMalformedDSN(t *testing.T) {
	_, err := NewStore("not a dsn")
	assert.Error(t, err)
}

func TestKeyHashIsFixedWidthForLongKeys(t *testing.T) {
	endpoint := "wss://" + strings.Repeat("archive-node.", 20) + "example.org"
	short := keyHash("chainreport:storage:v1:wss://a:0x01")
	long := keyHash("chainreport:storage:v1:" + endpoint + ":0x" + strings.Repeat("ab", 80))
	other := keyHash("chainreport:storage:v1:" + endpoint + ":0x" + strings.Repeat("ab", 79) + "ac")

	assert.Len(t, short, 32)
	assert.Len(t, long, 32)
	assert.NotEqual(t, long, other)
	assert.Equal(t, long, keyHash("chainreport:storage:v1:"+endpoint+":0x"+strings.Repeat("ab", 80)))
}
