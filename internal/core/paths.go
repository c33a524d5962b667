package core

import (
	"os"
	"path/filepath"
)

type Paths struct {
	DataDir        string
	LogFile        string
	TranscriptFile string
}

// DefaultDataDir returns ~/.toolgate, or an empty string when the home
// directory cannot be determined.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".toolgate")
}

// NewPaths lays out the files kept under dataDir and makes sure the
// directory exists.
func NewPaths(dataDir string) (*Paths, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	return &Paths{
		DataDir:        dataDir,
		LogFile:        filepath.Join(dataDir, "toolgate.log"),
		TranscriptFile: filepath.Join(dataDir, "transcript.db"),
	}, nil
}
