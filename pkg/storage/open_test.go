package storage

import (
	"testing"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		opts    Options
		want    string
		wantErr bool
	}{
		{name: "default", opts: Options{}, want: "*storage.MemoryStore"},
		{name: "memory", opts: Options{Backend: "memory"}, want: "*storage.MemoryStore"},
		{name: "file", opts: Options{Backend: "file", Dir: dir}, want: "*storage.FileStore"},
		{name: "file without dir", opts: Options{Backend: "file"}, wantErr: true},
		{name: "redis without addr", opts: Options{Backend: "redis"}, wantErr: true},
		{name: "unknown", opts: Options{Backend: "s3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			var got string
			switch s.(type) {
			case *MemoryStore:
				got = "*storage.MemoryStore"
			case *FileStore:
				got = "*storage.FileStore"
			}
			if got != tt.want {
				t.Errorf("Open() = %T, want %s", s, tt.want)
			}
		})
	}
}
