package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestStateDirUsesXDGStateHome(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	dir, err := StateDir()
	require.NoError(t, err)
	require.Equal(t, state, dir)
}

func TestStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := StateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}

func TestCreateDebugFile(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	file, err := CreateDebugFile("speech", "jsonl")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	require.Equal(t, filepath.Join(state, "inkwell", "debug"), filepath.Dir(file.Name()))
	require.Contains(t, filepath.Base(file.Name()), "speech-")
	require.Equal(t, ".jsonl", filepath.Ext(file.Name()))

	stat, err := os.Stat(file.Name())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestWriteWAVRoundTripsSamples(t *testing.T) {
	pcm := make([]byte, 0, 8)
	for _, sample := range []int16{0, 1200, -1200, 32767} {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(sample))
	}

	file, err := os.Create(filepath.Join(t.TempDir(), "out.wav"))
	require.NoError(t, err)
	require.NoError(t, WriteWAV(file, pcm, 16000))
	require.NoError(t, file.Close())

	in, err := os.Open(file.Name())
	require.NoError(t, err)
	defer in.Close()

	decoder := wav.NewDecoder(in)
	require.True(t, decoder.IsValidFile())
	buffer, err := decoder.FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, []int{0, 1200, -1200, 32767}, buffer.Data)
	require.Equal(t, uint32(16000), decoder.SampleRate)
	require.Equal(t, uint16(1), decoder.NumChans)
}

func TestDumpAudioSkipsEmptyPCM(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	path, err := DumpAudio(nil, 16000)
	require.NoError(t, err)
	require.Empty(t, path)

	path, err = DumpAudio([]byte{1, 0}, 16000)
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestProtoSinkWritesJSONLines(t *testing.T) {
	var out bytes.Buffer
	sink := NewProtoSink(&out)

	msg, err := structpb.NewStruct(map[string]any{"transcript": "hello"})
	require.NoError(t, err)
	require.NoError(t, sink.Write(msg))
	require.NoError(t, sink.Write(msg))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	require.Contains(t, string(lines[0]), `"transcript"`)

	var nilSink *ProtoSink
	require.NoError(t, nilSink.Write(msg))
}
