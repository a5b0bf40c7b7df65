package pipeline

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// StateDir returns $XDG_STATE_HOME or ~/.local/state.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

// CreateDebugFile opens a new timestamped file under state/inkwell/debug.
func CreateDebugFile(prefix string, extension string) (*os.File, error) {
	state, err := StateDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(state, "inkwell", "debug")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.%s", prefix, time.Now().Format("20060102-150405.000"), extension)
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// WriteWAV encodes mono s16le PCM as a WAV file.
func WriteWAV(w io.WriteSeeker, pcm []byte, sampleRate int) error {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	encoder := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buffer); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// DumpAudio writes pcm to a new debug WAV file and returns its path.
func DumpAudio(pcm []byte, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	file, err := CreateDebugFile("audio", "wav")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := WriteWAV(file, pcm, sampleRate); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ProtoSink writes protobuf messages as JSON lines.
type ProtoSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewProtoSink(w io.Writer) *ProtoSink {
	return &ProtoSink{w: w}
}

func (s *ProtoSink) Write(msg proto.Message) error {
	if s == nil || s.w == nil {
		return nil
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal debug message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write debug message: %w", err)
	}
	return nil
}
