package s3xml

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
)

func TestCompleteMultipartUpload_Unmarshal(t *testing.T) {
	body := `<CompleteMultipartUpload><Part><PartNumber>1</PartNumber></Part><Part><PartNumber>2</PartNumber></Part></CompleteMultipartUpload>`

	var cmu CompleteMultipartUpload
	if err := xml.Unmarshal([]byte(body), &cmu); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(cmu.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(cmu.Parts))
	}
	if cmu.Parts[0].PartNumber != 1 || cmu.Parts[1].PartNumber != 2 {
		t.Errorf("unexpected part numbers: %+v", cmu.Parts)
	}
}

func TestDelete_Unmarshal(t *testing.T) {
	body := `<Delete><Object><Key>a.txt</Key></Object><Object><Key>b.txt</Key></Object></Delete>`

	var del Delete
	if err := xml.Unmarshal([]byte(body), &del); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(del.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(del.Objects))
	}
	if del.Objects[0].Key != "a.txt" || del.Objects[1].Key != "b.txt" {
		t.Errorf("unexpected keys: %+v", del.Objects)
	}
}

func TestInitiateMultipartUploadResult_Marshal(t *testing.T) {
	result := InitiateMultipartUploadResult{UploadID: "abc-123"}

	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(result); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if !strings.Contains(buf.String(), "<UploadId>abc-123</UploadId>") {
		t.Errorf("expected UploadId element, got %s", buf.String())
	}
}

func TestListBucketResult_Marshal(t *testing.T) {
	result := ListBucketResult{Prefix: "photos/", Keys: []string{"photos/a.jpg", "photos/b.jpg"}}

	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(result); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<Prefix>photos/</Prefix>") {
		t.Errorf("expected Prefix element, got %s", out)
	}
	if strings.Count(out, "<Key>") != 2 {
		t.Errorf("expected 2 Key elements, got %s", out)
	}
}
