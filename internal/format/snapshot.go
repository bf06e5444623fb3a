package format

// Snapshot layout (little-endian):
//
//	Offset  Size  Field
//	0x00    4     'r' 'h' 's' 'n'
//	0x04    4     Version
//	0x08    4     Object count
//	0x0C    4     Reserved
//	0x10    ...   Objects
//
// Each object record is:
//
//	0x00    4     Pointer field count (N)
//	0x04    4     Raw byte count (R)
//	0x08    8*N   Field references
//	...     R     Raw bytes, padded to a word boundary
//
// A field reference is 0 for null, otherwise (index+1) of the target record.
// Bit 0 of the encoded value carries the weak tag, so indexes are stored
// shifted left by one.

var (
	// SnapshotSignature is the four-byte magic at the start of a snapshot.
	SnapshotSignature = []byte{'r', 'h', 's', 'n'}
)

const (
	// SnapshotVersion is the only supported snapshot layout version.
	SnapshotVersion = 1

	// SnapshotHeaderSize is the fixed header preceding object records.
	SnapshotHeaderSize = 0x10

	// SnapshotVersionOffset is the offset of the version field.
	SnapshotVersionOffset = 0x04

	// SnapshotCountOffset is the offset of the object count field.
	SnapshotCountOffset = 0x08

	// SnapshotRecordHeaderSize is the size of the per-object record header.
	SnapshotRecordHeaderSize = 0x08

	// SnapshotFieldsOffset is the offset of the field count within a record.
	SnapshotFieldsOffset = 0x00

	// SnapshotRawOffset is the offset of the raw byte count within a record.
	SnapshotRawOffset = 0x04
)
