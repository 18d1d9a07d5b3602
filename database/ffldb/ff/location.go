package ff

import (
	"github.com/pkg/errors"
)

const flatFileLocationSerializedSize = 12

// flatFileLocation identifies a particular flat file location.
type flatFileLocation struct {
	fileNumber uint32
	fileOffset uint32
	dataLength uint32
}

// serializeLocation returns the serialization of the passed flat file
// location. This serialized value is appropriate to be stored and later
// handed over to deserializeLocation.
//
// Format: <file number><file offset><data length>
func serializeLocation(location *flatFileLocation) []byte {
	serializedLocation := make([]byte, flatFileLocationSerializedSize)
	byteOrder.PutUint32(serializedLocation[0:4], location.fileNumber)
	byteOrder.PutUint32(serializedLocation[4:8], location.fileOffset)
	byteOrder.PutUint32(serializedLocation[8:12], location.dataLength)
	return serializedLocation
}

// deserializeLocation deserializes the passed serialized flat file
// location. See serializeLocation for further details.
func deserializeLocation(serializedLocation []byte) (*flatFileLocation, error) {
	if len(serializedLocation) != flatFileLocationSerializedSize {
		return nil, errors.Errorf("unexpected serialized location length: "+
			"%d", len(serializedLocation))
	}
	location := &flatFileLocation{
		fileNumber: byteOrder.Uint32(serializedLocation[0:4]),
		fileOffset: byteOrder.Uint32(serializedLocation[4:8]),
		dataLength: byteOrder.Uint32(serializedLocation[8:12]),
	}
	return location, nil
}
