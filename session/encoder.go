package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"

	"github.com/RedBox-TN/Backend-sub000/permission"
)

const recordFormatVersionCurrent = 1

const (
	flagTfaEnabled byte = 1 << iota
	flagAuthenticated
)

// Encode serializes r into the versioned binary format.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionCurrent)

	if err := writeString(&buf, "userID", r.UserID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "username", r.Username); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "role", r.Role); err != nil {
		return nil, err
	}

	maskBytes := permission.EncodeMask(r.Permissions)
	buf.WriteByte(byte(len(maskBytes)))
	buf.Write(maskBytes)

	if err := binary.Write(&buf, binary.BigEndian, r.DeviceHash); err != nil {
		return nil, err
	}

	var flags byte
	if r.TfaEnabled {
		flags |= flagTfaEnabled
	}
	if r.IsAuthenticated {
		flags |= flagAuthenticated
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	r := &Record{}

	if r.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if r.Username, err = readString(reader); err != nil {
		return nil, err
	}
	if r.Role, err = readString(reader); err != nil {
		return nil, err
	}

	maskSize, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	maskBytes := make([]byte, maskSize)
	if _, err := io.ReadFull(reader, maskBytes); err != nil {
		return nil, err
	}
	if r.Permissions, err = permission.DecodeMask(maskBytes); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &r.DeviceHash); err != nil {
		return nil, err
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.TfaEnabled = flags&flagTfaEnabled != 0
	r.IsAuthenticated = flags&flagAuthenticated != 0

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes after session record")
	}

	return r, nil
}

func writeString(buf *bytes.Buffer, field, v string) error {
	if len(v) > 255 {
		return fmt.Errorf("%s too long", field)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// marshal encodes and block-compresses r for storage.
func marshal(r *Record) ([]byte, error) {
	raw, err := Encode(r)
	if err != nil {
		return nil, err
	}
	return s2.Encode(nil, raw), nil
}

func unmarshal(data []byte) (*Record, error) {
	raw, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	r, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return r, nil
}
