/*
 * rsu - Partition model.
 *
 * Copyright 2025, SOCFPGA Tools authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package store

import (
	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/metadata"
)

// PartitionCount returns the number of table entries.
func (s *Store) PartitionCount() int {
	return len(s.spt.Partitions)
}

func (s *Store) checkPart(part int) error {
	if part < 0 || part >= len(s.spt.Partitions) {
		return errors.Errorf("store: invalid partition number %d", part)
	}
	return nil
}

// Partition returns a copy of the partition entry.
func (s *Store) Partition(part int) (metadata.Partition, error) {
	if err := s.checkPart(part); err != nil {
		return metadata.Partition{}, err
	}
	return s.spt.Partitions[part], nil
}

// PartitionName returns the entry name, or "BAD" for an invalid
// number.
func (s *Store) PartitionName(part int) string {
	if s.checkPart(part) != nil {
		return "BAD"
	}
	return s.spt.Partitions[part].Name
}

// PartitionOffset returns the entry's flash offset.
func (s *Store) PartitionOffset(part int) (uint64, error) {
	if err := s.checkPart(part); err != nil {
		return 0, err
	}
	return s.spt.Partitions[part].Offset, nil
}

// PartitionSize returns the entry length in bytes.
func (s *Store) PartitionSize(part int) (int64, error) {
	if err := s.checkPart(part); err != nil {
		return 0, err
	}
	return int64(s.spt.Partitions[part].Length), nil
}

// PartitionReserved reports the reserved flag of an entry.
func (s *Store) PartitionReserved(part int) bool {
	return s.checkPart(part) == nil && s.spt.Partitions[part].IsReserved()
}

// PartitionReadonly reports the read-only flag of an entry.
func (s *Store) PartitionReadonly(part int) bool {
	return s.checkPart(part) == nil && s.spt.Partitions[part].IsReadonly()
}

// FactoryOffset returns the flash offset of the factory image.
func (s *Store) FactoryOffset() (uint64, error) {
	part := s.spt.FindPartition(metadata.FactoryImageName)
	if part < 0 {
		return 0, errors.New("store: could not find the factory image")
	}
	return s.spt.Partitions[part].Offset, nil
}

// PartitionRename renames an entry and rewrites both table copies.
func (s *Store) PartitionRename(part int, name string) error {
	if err := s.checkPart(part); err != nil {
		return err
	}
	if len(name) >= metadata.NameLength {
		return errors.Errorf("store: partition name is too long, limited to %d", metadata.NameLength-1)
	}
	if s.spt.FindPartition(name) >= 0 {
		return errors.Errorf("store: partition name %q already in use", name)
	}

	s.spt.Partitions[part].Name = name

	if err := s.writebackSPT(); err != nil {
		return err
	}
	return s.loadSPT()
}

// PartitionDelete removes an entry and rewrites both table copies.
func (s *Store) PartitionDelete(part int) error {
	if err := s.checkPart(part); err != nil {
		return err
	}

	s.spt.Partitions = append(s.spt.Partitions[:part], s.spt.Partitions[part+1:]...)

	if err := s.writebackSPT(); err != nil {
		return err
	}
	return s.loadSPT()
}

// PartitionCreate appends a new entry and rewrites both table copies.
// The new partition must not overlap an existing one.
func (s *Store) PartitionCreate(name string, start uint64, size uint32) error {
	if len(name) >= metadata.NameLength {
		return errors.Errorf("store: partition name is too long, limited to %d", metadata.NameLength-1)
	}
	if s.spt.FindPartition(name) >= 0 {
		return errors.Errorf("store: partition name %q already in use", name)
	}
	if len(s.spt.Partitions) >= metadata.MaxPartitions {
		return errors.New("store: partition table is full")
	}

	end := start + uint64(size)
	for _, p := range s.spt.Partitions {
		if start < p.Offset+uint64(p.Length) && end > p.Offset {
			return errors.Errorf("store: partition overlaps %q", p.Name)
		}
	}

	s.spt.Partitions = append(s.spt.Partitions, metadata.Partition{
		Name:   name,
		Offset: start,
		Length: size,
	})

	if err := s.writebackSPT(); err != nil {
		return err
	}
	return s.loadSPT()
}
