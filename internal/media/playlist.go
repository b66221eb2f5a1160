package media

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// ErrNoTracks is returned by Expand when nothing playable was found.
var ErrNoTracks = errors.New("no playable tracks")

// ReadPlaylist returns the local entries of an .m3u, .m3u8 or .pls file,
// resolved against the playlist's directory. Remote URLs are skipped.
func ReadPlaylist(path string) ([]string, error) {
	if !IsPlaylist(path) {
		return nil, fmt.Errorf("unsupported playlist format %s", filepath.Ext(path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading playlist: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	entry := m3uEntry
	if strings.EqualFold(filepath.Ext(path), ".pls") {
		entry = plsEntry
	}

	dir := filepath.Dir(abs)
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		v, ok := entry(strings.TrimSpace(sc.Text()))
		if !ok || isRemote(v) {
			continue
		}
		v = filepath.Clean(v)
		if !filepath.IsAbs(v) {
			v = filepath.Join(dir, v)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}

func m3uEntry(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	return strings.Trim(line, `"`), true
}

// plsEntry accepts FileN=path lines.
func plsEntry(line string) (string, bool) {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return "", false
	}
	key, val = strings.TrimSpace(key), strings.TrimSpace(val)
	n, found := strings.CutPrefix(strings.ToLower(key), "file")
	if !found || val == "" {
		return "", false
	}
	if _, err := strconv.Atoi(n); err != nil {
		return "", false
	}
	return val, true
}

func isRemote(s string) bool {
	return strings.Contains(s, "://")
}

// Expand turns command line arguments into the track list and the index to
// start at. A single audio file brings its sibling files along so the queue
// can move on to the next track. Directories contribute their audio files
// in name order; playlists contribute their existing local entries.
func Expand(args []string) (paths []string, start int, err error) {
	if len(args) == 1 && IsAudio(args[0]) {
		if info, statErr := os.Stat(args[0]); statErr == nil && !info.IsDir() {
			return withSiblings(args[0])
		}
	}
	for _, arg := range args {
		info, statErr := os.Stat(arg)
		if statErr != nil {
			return nil, 0, statErr
		}
		switch {
		case info.IsDir():
			found, err := audioIn(arg)
			if err != nil {
				return nil, 0, err
			}
			paths = append(paths, found...)
		case IsPlaylist(arg):
			entries, err := ReadPlaylist(arg)
			if err != nil {
				return nil, 0, err
			}
			paths = append(paths, playable(entries)...)
		case IsAudio(arg):
			paths = append(paths, arg)
		}
	}
	if len(paths) == 0 {
		return nil, 0, ErrNoTracks
	}
	return paths, 0, nil
}

func withSiblings(path string) ([]string, int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return []string{path}, 0, nil
	}
	all, err := audioIn(filepath.Dir(abs))
	if err != nil {
		return []string{abs}, 0, nil
	}
	i := slices.Index(all, abs)
	if i < 0 {
		return []string{abs}, 0, nil
	}
	return all, i, nil
}

// audioIn lists the audio files directly inside dir, sorted by name.
func audioIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && IsAudio(e.Name()) {
			out = append(out, filepath.Join(abs, e.Name()))
		}
	}
	slices.Sort(out)
	return out, nil
}

// playable keeps the entries that exist, are regular files and decode.
func playable(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() || !IsAudio(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}
