// Package wav writes and parses canonical 44-byte-header linear PCM WAVE
// files. The writer emits the header and payload as one sequential write
// because the total payload size is known before the first byte is produced;
// no incremental header patching ever happens.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// HeaderSize is the fixed byte length of the RIFF/fmt/data header preamble.
const HeaderSize = 44

// MaxDataBytes is the largest PCM payload a single WAVE file can carry: the
// RIFF chunk size field is 32-bit and covers the payload plus 36 bytes of
// header structure after the field itself.
const MaxDataBytes = 0xFFFFFFFF - 36

// ErrTooLarge is returned when the payload would overflow the RIFF size field.
var ErrTooLarge = errors.New("wav: payload exceeds RIFF 32-bit size field")

// CheckSize reports whether a PCM payload of n bytes fits the container.
// Callers that know the payload size up front (the audio extraction pipeline
// computes it from clip metadata) use this to fail before buffering anything.
func CheckSize(n uint64) error {
	if n > MaxDataBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	return nil
}

// ErrBadFormat is returned by Parse for anything that is not a 44-byte-header
// PCM WAVE file.
var ErrBadFormat = errors.New("wav: malformed or non-PCM file")

// Format describes the PCM sample layout of a file.
type Format struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// BlockAlign returns the byte size of one multi-channel sample frame.
func (f Format) BlockAlign() uint16 {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the byte throughput per second of audio.
func (f Format) ByteRate() uint32 {
	return f.SampleRate * uint32(f.BlockAlign())
}

// Write serializes a complete PCM WAVE file to w: fixed header followed by
// the payload. It fails before writing anything if the payload does not fit
// the container's 32-bit size field.
func Write(w io.Writer, f Format, pcm []byte) error {
	if err := CheckSize(uint64(len(pcm))); err != nil {
		return err
	}

	var hdr bytes.Buffer
	hdr.Grow(HeaderSize)
	hdr.WriteString("RIFF")
	le32(&hdr, 36+uint32(len(pcm)))
	hdr.WriteString("WAVE")

	hdr.WriteString("fmt ")
	le32(&hdr, 16) // fmt chunk size
	le16(&hdr, 1)  // format tag: linear PCM
	le16(&hdr, f.Channels)
	le32(&hdr, f.SampleRate)
	le32(&hdr, f.ByteRate())
	le16(&hdr, f.BlockAlign())
	le16(&hdr, f.BitsPerSample)

	hdr.WriteString("data")
	le32(&hdr, uint32(len(pcm)))

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("wav: write payload: %w", err)
	}
	return nil
}

// WriteFile writes a complete WAVE file at path, creating or truncating it.
// On any error the partially written file is removed so a failed extraction
// never leaves a truncated container behind.
func WriteFile(path string, f Format, pcm []byte) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wav: create %s: %w", path, err)
	}
	if err := Write(out, f, pcm); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("wav: close %s: %w", path, err)
	}
	return nil
}

// Parse reads back a file produced by Write, returning its format and PCM
// payload. It exists for verification; it accepts only the canonical layout
// this package emits.
func Parse(r io.Reader) (Format, []byte, error) {
	var f Format

	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return f, nil, fmt.Errorf("%w: short header: %v", ErrBadFormat, err)
	}

	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return f, nil, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrBadFormat)
	}
	if string(hdr[12:16]) != "fmt " || binary.LittleEndian.Uint32(hdr[16:20]) != 16 {
		return f, nil, fmt.Errorf("%w: unexpected fmt chunk", ErrBadFormat)
	}
	if tag := binary.LittleEndian.Uint16(hdr[20:22]); tag != 1 {
		return f, nil, fmt.Errorf("%w: format tag %d", ErrBadFormat, tag)
	}

	f.Channels = binary.LittleEndian.Uint16(hdr[22:24])
	f.SampleRate = binary.LittleEndian.Uint32(hdr[24:28])
	f.BitsPerSample = binary.LittleEndian.Uint16(hdr[34:36])

	if string(hdr[36:40]) != "data" {
		return f, nil, fmt.Errorf("%w: missing data chunk", ErrBadFormat)
	}
	dataLen := binary.LittleEndian.Uint32(hdr[40:44])

	pcm := make([]byte, dataLen)
	if _, err := io.ReadFull(r, pcm); err != nil {
		return f, nil, fmt.Errorf("%w: short payload: %v", ErrBadFormat, err)
	}
	return f, pcm, nil
}

func le16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}

func le32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}
