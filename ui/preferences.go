package ui

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const MAX_RECENT = 10

type RecentFile struct {
	Path string `json:"path"`
	Time int64  `json:"time"`
}

func (rf RecentFile) Name() string {
	return filepath.Base(rf.Path)
}

func (rf RecentFile) Date() string {
	return time.Unix(rf.Time, 0).Format("2006-01-02 15:04")
}

// RecentFiles is kept oldest first; accessors return it newest first.
type RecentFiles []RecentFile

type Preferences struct {
	path           string
	RecentSessions RecentFiles `json:"recent_sessions"`
	RecentTracks   RecentFiles `json:"recent_tracks"`
}

// LoadPreferences reads path. A missing file gives empty preferences.
func LoadPreferences(path string) (*Preferences, error) {
	prefs := &Preferences{
		path:           path,
		RecentSessions: RecentFiles{},
		RecentTracks:   RecentFiles{},
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return prefs, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return prefs, err
	}
	if stat.Size() == 0 {
		return prefs, nil
	}
	if err := json.NewDecoder(f).Decode(prefs); err != nil {
		return prefs, err
	}
	prefs.Refresh()
	return prefs, nil
}

// add moves path to the newest position, dropping the oldest entries past
// MAX_RECENT.
func (rfs RecentFiles) add(path string) RecentFiles {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	out := slices.DeleteFunc(slices.Clone(rfs), func(rf RecentFile) bool {
		return rf.Path == path
	})
	out = append(out, RecentFile{Path: path, Time: time.Now().Unix()})
	if len(out) > MAX_RECENT {
		out = out[len(out)-MAX_RECENT:]
	}
	return out
}

func (rfs RecentFiles) newestFirst() RecentFiles {
	s := slices.Clone(rfs)
	slices.Reverse(s)
	return s
}

func (p *Preferences) Save() error {
	if p.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p.path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}

func (p *Preferences) AddSession(path string) {
	p.RecentSessions = p.RecentSessions.add(path)
}

func (p *Preferences) AddTrack(path string) {
	p.RecentTracks = p.RecentTracks.add(path)
}

func (p *Preferences) Sessions() RecentFiles {
	return p.RecentSessions.newestFirst()
}

func (p *Preferences) Tracks() RecentFiles {
	return p.RecentTracks.newestFirst()
}

// Refresh updates dates from the files and forgets the ones that are gone.
func (p *Preferences) Refresh() {
	refresh := func(rfs RecentFiles) RecentFiles {
		out := RecentFiles{}
		for _, item := range rfs {
			stat, err := os.Stat(item.Path)
			if err != nil {
				continue
			}
			item.Time = stat.ModTime().Unix()
			out = append(out, item)
		}
		return out
	}
	p.RecentSessions = refresh(p.RecentSessions)
	p.RecentTracks = refresh(p.RecentTracks)
}
