package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadRight(t *testing.T) {
	assert.Equal(t, "abc  ", PadRight("abc", 5))
	assert.Equal(t, "abc", PadRight("abc", 3))
	assert.Equal(t, "abcd…", PadRight("abcdefgh", 5))
	assert.Equal(t, "a", PadRight("abc", 1))
	assert.Equal(t, "", PadRight("abc", 0))
}

func TestTableRender(t *testing.T) {
	tbl := NewTable([]Column{{Title: "Token", Width: 6}, {Title: "Project", Width: 10}})
	tbl.AddRow(Row{"#1", "Mangroves"})
	tbl.AddRow(Row{"#2"})

	out := tbl.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Token")
	assert.Contains(t, lines[0], "Project")
	assert.Contains(t, lines[2], "Mangroves")
	assert.Contains(t, lines[3], "#2")
}

func TestKeyValueBlock(t *testing.T) {
	out := KeyValueBlock("Session", [][2]string{{"State", "connected"}, {"Account", "0xabc"}})
	assert.Contains(t, out, "Session")
	assert.Contains(t, out, "State:")
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "0xabc")
}
