package ff

import (
	"hash/crc32"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// lockableFile represents a flat file on disk that has been opened for either
// read or read/write access. It also contains a read-write mutex to support
// multiple concurrent readers which can reuse the file handle.
type lockableFile struct {
	sync.RWMutex

	file *os.File
}

// Close closes the underlying file if it is open.
func (lf *lockableFile) Close() error {
	if lf.file == nil {
		return nil
	}
	return errors.WithStack(lf.file.Close())
}

// write appends the specified data bytes to the store's write cursor location
// and increments it accordingly. When the data would exceed the max file size
// for the current flat file, this function will close the current file, create
// the next file, update the write cursor, and write the data to the new file.
//
// The write cursor will also be advanced the number of bytes actually written
// in the event of failure.
//
// Format: <data length><data><checksum>
func (s *flatFileStore) write(data []byte) (*flatFileLocation, error) {
	if s.isClosed {
		return nil, errors.Errorf("cannot write to a closed store %s",
			s.storeName)
	}

	// Compute how many bytes will be written.
	// 4 bytes data length + length of the data + 4 bytes checksum.
	dataLength := uint32(dataLengthLength + len(data) + crc32ChecksumLength)

	// Grab the write cursor for the duration of the write.
	cursor := s.writeCursor
	cursor.Lock()
	defer cursor.Unlock()

	// Move to the next file if adding the new data would exceed the max
	// allowed size for the current flat file. Also detect overflow because
	// even though it isn't possible currently, numbers might change in the
	// future to make it possible.
	finalOffset := cursor.currentOffset + dataLength
	if finalOffset < cursor.currentOffset || finalOffset > maxFileSize {
		// This is done under the write cursor lock since the
		// currentFileNumber field is accessed elsewhere by readers.
		//
		// Close the current write file to force a read-only reopen
		// with LRU tracking. The close is done under the write lock
		// for the file to prevent it from being closed out from under
		// any readers currently reading from it.
		cursor.currentFile.Lock()
		if cursor.currentFile.file != nil {
			_ = cursor.currentFile.file.Close()
			cursor.currentFile.file = nil
		}
		cursor.currentFile.Unlock()

		// Start writes into the next file.
		cursor.currentFileNumber++
		cursor.currentOffset = 0
	}

	// All writes are done under the write lock for the file to ensure any
	// readers are finished and blocked first.
	cursor.currentFile.Lock()
	defer cursor.currentFile.Unlock()

	// Open the current file if needed. This will typically only be the
	// case when a new active file is being created.
	if cursor.currentFile.file == nil {
		file, err := s.openWriteFile(cursor.currentFileNumber)
		if err != nil {
			return nil, err
		}
		cursor.currentFile.file = file
	}

	originalOffset := cursor.currentOffset
	hasher := crc32.New(castagnoli)

	// Data length.
	var serializedDataLength [4]byte
	byteOrder.PutUint32(serializedDataLength[:], uint32(len(data)))
	err := s.writeData(serializedDataLength[:], "data length")
	if err != nil {
		return nil, err
	}
	_, _ = hasher.Write(serializedDataLength[:])

	// Data.
	err = s.writeData(data, "data")
	if err != nil {
		return nil, err
	}
	_, _ = hasher.Write(data)

	// Checksum.
	var checksum [4]byte
	crc32ByteOrder.PutUint32(checksum[:], hasher.Sum32())
	err = s.writeData(checksum[:], "checksum")
	if err != nil {
		return nil, err
	}

	location := &flatFileLocation{
		fileNumber: cursor.currentFileNumber,
		fileOffset: originalOffset,
		dataLength: dataLength,
	}
	return location, nil
}

// openWriteFile returns a file handle for the passed flat file number in
// read/write mode. The file will be created if needed. It is typically used
// for the current file that will have all new data appended. Unlike openFile,
// this function does not keep track of the open file and it is not subject to
// the maxOpenFiles limit.
func (s *flatFileStore) openWriteFile(fileNumber uint32) (*os.File, error) {
	// The current flat file needs to be read-write so it is possible to
	// append to it. Also, it shouldn't be part of the least recently used
	// file.
	filePath := flatFilePath(s.basePath, s.storeName, fileNumber)
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Errorf("error opening file %s: %s", filePath, err)
	}

	return file, nil
}

// writeData is a helper function for write which writes the provided data at
// the current write offset and updates the write cursor accordingly. The field
// name parameter is only used when there is an error to provide a nicer error
// message.
//
// The write cursor will be advanced the number of bytes actually written in
// the event of failure.
//
// NOTE: This function MUST be called with the write lock held for both the
// write cursor and the write file.
func (s *flatFileStore) writeData(data []byte, fieldName string) error {
	cursor := s.writeCursor
	n, err := cursor.currentFile.file.WriteAt(data, int64(cursor.currentOffset))
	cursor.currentOffset += uint32(n)
	if err != nil {
		return errors.Wrapf(err, "failed to write %s in store '%s' to file "+
			"%d at offset %d", fieldName, s.storeName,
			cursor.currentFileNumber, cursor.currentOffset-uint32(n))
	}

	return nil
}

// rollback rolls the flat-file store back to the given rollback point.
// Any data that was written after the rollback point is truncated away.
// All files that are completely after the rollback point are deleted.
func (s *flatFileStore) rollback(targetLocation *flatFileLocation) error {
	if s.isClosed {
		return errors.Errorf("cannot rollback a closed store %s",
			s.storeName)
	}

	// Grab the write cursor for the duration of the rollback.
	cursor := s.writeCursor
	cursor.Lock()
	defer cursor.Unlock()

	// Nothing to do if the rollback point is the same as the current
	// write cursor.
	if cursor.currentFileNumber == targetLocation.fileNumber &&
		cursor.currentOffset == targetLocation.fileOffset {
		return nil
	}

	// Rolling back to a location after the write cursor indicates definite
	// database corruption, since it means that data had disappeared out
	// from under us.
	if cursor.currentFileNumber < targetLocation.fileNumber ||
		(cursor.currentFileNumber == targetLocation.fileNumber &&
			cursor.currentOffset < targetLocation.fileOffset) {
		return errors.Errorf("cannot rollback the store '%s' to a "+
			"location after the write cursor", s.storeName)
	}

	// Close the current write file if it needs to be deleted.
	if cursor.currentFileNumber > targetLocation.fileNumber {
		cursor.currentFile.Lock()
		if cursor.currentFile.file != nil {
			_ = cursor.currentFile.file.Close()
			cursor.currentFile.file = nil
		}
		cursor.currentFile.Unlock()
	}

	// Delete all files that are newer than the provided rollback file.
	s.openFilesMutex.Lock()
	s.lruMutex.Lock()
	for ; cursor.currentFileNumber > targetLocation.fileNumber; cursor.currentFileNumber-- {
		err := s.deleteFile(cursor.currentFileNumber)
		if err != nil {
			s.lruMutex.Unlock()
			s.openFilesMutex.Unlock()
			return errors.Wrapf(err, "failed to delete file number %d "+
				"in store '%s'", cursor.currentFileNumber, s.storeName)
		}
	}
	s.lruMutex.Unlock()
	s.openFilesMutex.Unlock()

	// Open the file for the current write cursor if needed.
	cursor.currentFile.Lock()
	defer cursor.currentFile.Unlock()
	if cursor.currentFile.file == nil {
		file, err := s.openWriteFile(cursor.currentFileNumber)
		if err != nil {
			return err
		}
		cursor.currentFile.file = file
	}

	// Truncate the file to the provided rollback point.
	err := cursor.currentFile.file.Truncate(int64(targetLocation.fileOffset))
	if err != nil {
		return errors.Wrapf(err, "failed to truncate file %d in store "+
			"'%s'", cursor.currentFileNumber, s.storeName)
	}

	// Sync the file to disk.
	err = cursor.currentFile.file.Sync()
	if err != nil {
		return errors.Wrapf(err, "failed to sync file %d in store '%s'",
			cursor.currentFileNumber, s.storeName)
	}

	cursor.currentOffset = targetLocation.fileOffset
	return nil
}
