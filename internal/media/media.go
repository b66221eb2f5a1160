// Package media decides which files the player can open and expands command
// line arguments (files, directories, playlists) into a track list.
package media

import (
	"path/filepath"
	"strings"
)

var audioExts = []string{".mp3", ".wav", ".flac", ".ogg"}

var playlistExts = []string{".m3u", ".m3u8", ".pls"}

func hasExt(list []string, path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range list {
		if e == ext {
			return true
		}
	}
	return false
}

// IsAudio reports whether path has a decodable extension.
func IsAudio(path string) bool { return hasExt(audioExts, path) }

// IsPlaylist reports whether path is a playlist file.
func IsPlaylist(path string) bool { return hasExt(playlistExts, path) }

// SupportedExts lists the decodable extensions for usage text.
func SupportedExts() string { return strings.Join(audioExts, ", ") }

// Title names a track after its file.
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
