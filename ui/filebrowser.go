package ui

import (
	"fmt"
	"strings"
)

// fileBrowser lists recent files under the filename prompt; up/down pick one.
type fileBrowser struct {
	files  RecentFiles
	cursor int // -1 while the user types a name
}

func newFileBrowser(files RecentFiles) fileBrowser {
	return fileBrowser{files: files, cursor: -1}
}

func (b fileBrowser) move(delta int) fileBrowser {
	if len(b.files) == 0 {
		return b
	}
	b.cursor = min(max(b.cursor+delta, -1), len(b.files)-1)
	return b
}

func (b fileBrowser) selected() (RecentFile, bool) {
	if b.cursor < 0 || b.cursor >= len(b.files) {
		return RecentFile{}, false
	}
	return b.files[b.cursor], true
}

func (b fileBrowser) View() string {
	if len(b.files) == 0 {
		return dimStyle.Render("no recent files")
	}
	width := 0
	for _, rf := range b.files {
		width = max(width, len(rf.Name()))
	}
	var sb strings.Builder
	for i, rf := range b.files {
		line := fmt.Sprintf("%-*s  %s", width, rf.Name(), rf.Date())
		if i == b.cursor {
			sb.WriteString(cursorStyle.Render(line))
		} else {
			sb.WriteString(dimStyle.Render(line))
		}
		if i < len(b.files)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
