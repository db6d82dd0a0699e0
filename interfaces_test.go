package prefs

import (
	"testing"
)

func TestInterfaces(t *testing.T) {
	t.Name()
	var _ Backend = NewMockBackend()
	var _ Root = NewMockRoot(RootID{})
	var _ Node = &MockNode{}
	var _ Cache = NewMockCache()
	var _ Logger = &MockLogger{}
	var _ Encrypter = &EncryptionAdapter{}
	var _ Codec = JSONCodec{}
	var _ Codec = YAMLCodec{}
	var _ Codec = BencodeCodec{}
}
