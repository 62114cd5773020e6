// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package s3 fetches snapshot content from an S3 bucket laid out like a DVC
// remote.
package s3

import (
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/datacatalog/etl"
	"github.com/pkg/errors"
)

var _ etl.Fetcher = &Fetcher{}

// SrcOption is a functional option type for Fetcher.
type SrcOption func(f *Fetcher)

// OptSrcBucket is a SrcOption which sets the S3 bucket for a Fetcher.
func OptSrcBucket(bucket string) SrcOption {
	return func(f *Fetcher) {
		f.bucket = bucket
	}
}

// OptSrcRegion is a SrcOption which sets the AWS region for a Fetcher.
func OptSrcRegion(region string) SrcOption {
	return func(f *Fetcher) {
		f.region = region
	}
}

// OptSrcPrefix sets a key prefix prepended to every content key.
func OptSrcPrefix(prefix string) SrcOption {
	return func(f *Fetcher) {
		f.prefix = prefix
	}
}

// OptSrcEndpoint points the client at an S3 compatible service.
func OptSrcEndpoint(endpoint string) SrcOption {
	return func(f *Fetcher) {
		f.endpoint = endpoint
	}
}

// OptSrcClient uses the given client instead of creating one.
func OptSrcClient(c s3iface.S3API) SrcOption {
	return func(f *Fetcher) {
		f.s3 = c
	}
}

// Fetcher is an etl.Fetcher reading objects from S3.
type Fetcher struct {
	bucket   string
	prefix   string
	region   string
	endpoint string

	s3 s3iface.S3API
}

// NewFetcher returns a new Fetcher with the options applied.
func NewFetcher(opts ...SrcOption) (*Fetcher, error) {
	f := &Fetcher{}
	for _, opt := range opts {
		opt(f)
	}
	if f.bucket == "" {
		return nil, errors.New("no bucket given")
	}
	if f.s3 != nil {
		return f, nil
	}
	conf := &aws.Config{Region: aws.String(f.region)}
	if f.endpoint != "" {
		conf.Endpoint = aws.String(f.endpoint)
		conf.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(conf)
	if err != nil {
		return nil, errors.Wrap(err, "getting new session")
	}
	f.s3 = s3.New(sess)
	return f, nil
}

// Fetch returns the body of the object at key below the prefix.
func (f *Fetcher) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	full := path.Join(f.prefix, key)
	result, err := f.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching s3://%s/%s", f.bucket, full)
	}
	return result.Body, nil
}
