package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

// WriteWAV writes a Buffer to path as a canonical 16-bit PCM RIFF file.
// External processors (rubberband) consume and produce WAV, so this is the
// handoff format for the stretch pipeline.
func WriteWAV(path string, b *Buffer) error {
	data := SamplesToBytes(b.Samples)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(data)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(header[22:24], Channels)
	binary.LittleEndian.PutUint32(header[24:28], SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], SampleRate*Channels*BitDepth/8)
	binary.LittleEndian.PutUint16(header[32:34], Channels*BitDepth/8)
	binary.LittleEndian.PutUint16(header[34:36], BitDepth)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(data)))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}
