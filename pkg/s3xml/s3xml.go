// Package s3xml models the S3-flavored XML request/response bodies the
// object API speaks: multipart initiate/complete and batch delete on the
// request side, list-bucket and initiate-result on the response side.
package s3xml

import "encoding/xml"

// InitiateMultipartUploadResult is the response body for POST /key?uploads.
type InitiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	UploadID string   `xml:"UploadId"`
}

// CompleteMultipartUpload is the request body for POST /key?uploadId=U,
// listing the part numbers to concatenate, in order.
type CompleteMultipartUpload struct {
	XMLName xml.Name `xml:"CompleteMultipartUpload"`
	Parts   []Part   `xml:"Part"`
}

// Part identifies one staged part of a multipart upload.
type Part struct {
	PartNumber int `xml:"PartNumber"`
}

// Delete is the request body for POST /bucket?delete: a batch of keys to
// hard-delete.
type Delete struct {
	XMLName xml.Name `xml:"Delete"`
	Objects []Object `xml:"Object"`
}

// Object names one key in a Delete batch.
type Object struct {
	Key string `xml:"Key"`
}

// ListBucketResult is the response body for GET /bucket/?prefix=…, the
// S3-style listing of LIVE keys under a prefix.
type ListBucketResult struct {
	XMLName xml.Name `xml:"ListBucketResult"`
	Prefix  string   `xml:"Prefix"`
	Keys    []string `xml:"Key"`
}
