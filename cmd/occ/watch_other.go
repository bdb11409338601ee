//go:build !linux && !darwin

package main

import "errors"

// FileWatcher is a stub on platforms without inotify or kqueue support.
type FileWatcher struct{}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	return nil, errors.New("--watch is only supported on linux and darwin")
}

func (fw *FileWatcher) AddFile(path string) error { return nil }
func (fw *FileWatcher) Watch()                    {}
func (fw *FileWatcher) Close() error              { return nil }
