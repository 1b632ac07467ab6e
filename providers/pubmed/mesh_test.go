package pubmed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const descFixture = `<?xml version="1.0"?>
<DescriptorRecordSet LanguageCode="eng">
<DescriptorRecord DescriptorClass="1">
  <DescriptorUI>D008875</DescriptorUI>
  <DescriptorName><String>Middle Aged</String></DescriptorName>
  <TreeNumberList><TreeNumber>M01.060.116.630</TreeNumber></TreeNumberList>
</DescriptorRecord>
<DescriptorRecord DescriptorClass="1">
  <DescriptorUI>D012907</DescriptorUI>
  <DescriptorName><String>Smoking</String></DescriptorName>
  <TreeNumberList><TreeNumber>F01.145.805</TreeNumber><TreeNumber>G07.290</TreeNumber></TreeNumberList>
</DescriptorRecord>
<DescriptorRecord><DescriptorUI>bogus</DescriptorUI></DescriptorRecord>
</DescriptorRecordSet>`

func TestReadDescriptors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "desc2023.xml"), []byte(descFixture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "desc2024.xml"), []byte(descFixture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "desc2025.xml.gz"), []byte("x"), 0o644))

	path, year, err := LatestMeshFile(dir)
	require.NoError(t, err)
	assert.Equal(t, 2024, year)
	assert.Equal(t, "desc2024.xml", filepath.Base(path))

	m := &MeshReader{Logger: zap.NewNop()}
	headings, err := m.ReadDescriptors(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, headings, 2)
	assert.Equal(t, int64(68008875), headings[0].ID)
	assert.Equal(t, "Middle Aged", headings[0].Name)
	assert.Equal(t, []string{"F01.145.805", "G07.290"}, headings[1].TreeNumbers)

	_, _, err = LatestMeshFile(t.TempDir())
	assert.Error(t, err)
}
