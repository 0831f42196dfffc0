// Copyright 2024 pykello
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"io"
	"os"
	"unsafe"
)

// Serialize and Deserialize move fixed-size values as raw host-native
// bytes. Files written on one architecture are not portable to another;
// this matches the legacy on-disk format.
type Serialize interface {
	WriteData(buffer []byte, len int) error
	Close() error
}

type Deserialize interface {
	ReadData(buffer []byte, len int) error
	Close() error
}

func Write[T any](value T, serial Serialize) error {
	cnt := int(unsafe.Sizeof(value))
	buf := PointerToSlice[byte](unsafe.Pointer(&value), cnt)
	return serial.WriteData(buf, cnt)
}

func Read[T any](value *T, deserial Deserialize) error {
	cnt := int(unsafe.Sizeof(*value))
	buf := PointerToSlice[byte](unsafe.Pointer(value), cnt)
	return deserial.ReadData(buf, cnt)
}

// WriteString writes an int32 length followed by the raw bytes.
func WriteString(s string, serial Serialize) error {
	err := Write[int32](int32(len(s)), serial)
	if err != nil {
		return err
	}
	if len(s) > 0 {
		return serial.WriteData(UnsafeStringToBytes(s), len(s))
	}
	return nil
}

func ReadString(deserial Deserialize) (string, error) {
	var l int32
	err := Read[int32](&l, deserial)
	if err != nil {
		return "", err
	}
	buf := make([]byte, l)
	err = deserial.ReadData(buf, int(l))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

type FileSerialize struct {
	file *os.File
}

func NewFileSerialize(path string) (*FileSerialize, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSerialize{file: file}, nil
}

func (serial *FileSerialize) WriteData(buffer []byte, len int) error {
	_, err := serial.file.Write(buffer[:len])
	return err
}

func (serial *FileSerialize) Position() (uint64, error) {
	pos, err := serial.file.Seek(0, io.SeekCurrent)
	return uint64(pos), err
}

func (serial *FileSerialize) Close() error {
	return serial.file.Close()
}

type FileDeserialize struct {
	file *os.File
}

func NewFileDeserialize(path string) (*FileDeserialize, error) {
	file, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileDeserialize{file: file}, nil
}

func (deserial *FileDeserialize) ReadData(buffer []byte, len int) error {
	_, err := io.ReadFull(deserial.file, buffer[:len])
	return err
}

func (deserial *FileDeserialize) Seek(offset uint64) error {
	_, err := deserial.file.Seek(int64(offset), io.SeekStart)
	return err
}

func (deserial *FileDeserialize) Close() error {
	return deserial.file.Close()
}
