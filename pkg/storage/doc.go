// Package storage keeps file container content in S3-compatible object storage.
//
// # Basic Usage
//
//	blobs, err := storage.New(storage.Config{
//		Bucket:    "homecloud",
//		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
//		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
//	})
//	if err != nil {
//		return err
//	}
//
//	rc, err := blobs.Get(ctx, "alice/photos/cat.jpg")
//	if errors.Is(err, storage.ErrNotFound) {
//		// ...
//	}
//	defer rc.Close()
//
// # MinIO
//
//	storage.Config{
//		Bucket:    "homecloud",
//		AccessKey: "minioadmin",
//		SecretKey: "minioadmin",
//		Endpoint:  "http://localhost:9000",
//		PathStyle: true,
//	}
//
// # Content types
//
// TypeByName and Sniff resolve content types from file names and content.
// ClassOf buckets a content type into image, document, video, audio or other,
// which is how file handlers are selected.
//
// Memory is an in-process implementation of Blobs for development and tests.
package storage
