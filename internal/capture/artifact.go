package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ErrArtifactRevoked is returned when reading an invalidated artifact.
var ErrArtifactRevoked = errors.New("recording artifact has been revoked")

// Artifact is one finalized recording, packaged as a WAV file ready for
// upload. Revoke invalidates it once a session is reset.
type Artifact struct {
	ID       string
	FileName string
	MIMEType string

	mu      sync.Mutex
	data    []byte
	revoked bool
}

// newArtifact wraps raw PCM in a WAV container under a fresh identity.
func newArtifact(pcm []byte) *Artifact {
	id := uuid.NewString()
	return &Artifact{
		ID:       id,
		FileName: "recording-" + id + ".wav",
		MIMEType: "audio/wav",
		data:     encodeWAV(pcm, SampleRate, Channels, BitsPerSample),
	}
}

// Bytes returns the encoded WAV content.
func (a *Artifact) Bytes() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revoked {
		return nil, ErrArtifactRevoked
	}
	return a.data, nil
}

// Reader returns a fresh reader over the encoded WAV content.
func (a *Artifact) Reader() (io.Reader, error) {
	data, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Revoke invalidates the artifact and releases its buffer.
func (a *Artifact) Revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = true
	a.data = nil
}

// encodeWAV writes a minimal RIFF/WAVE container around raw PCM samples.
func encodeWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
