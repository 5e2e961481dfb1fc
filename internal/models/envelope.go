package models

// CompressedBlob is the outer layer of the stored envelope. It is always
// present so the envelope shape stays uniform: when the input was below the
// compression threshold (or no compressor is configured) it carries the data
// verbatim with Compressed=false and both sizes equal to the input length.
type CompressedBlob struct {
	Compressed     bool   `json:"compressed"`
	Data           string `json:"data"` // base64 when compressed, verbatim otherwise
	OriginalSize   int    `json:"original_size"`
	CompressedSize int    `json:"compressed_size"`
}

// EncryptedBlob is the inner envelope layer. Encryption is applied to the
// serialized message before compression, so decoding always goes
// decompress-then-decrypt.
type EncryptedBlob struct {
	Ciphertext string `json:"ciphertext"` // base64
	IV         string `json:"iv"`         // base64
	AuthTag    string `json:"auth_tag"`   // base64
	Algorithm  string `json:"algorithm"`
}
