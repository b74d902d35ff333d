// Package remotedoc stores base64 encoded documents outside the database,
// either in an S3 bucket or on local disk.
//
//	docs, err := remotedoc.New(ctx, remotedoc.Config{
//		Client: remotedoc.ClientS3,
//		S3: remotedoc.S3Config{
//			Endpoint:        "minio:9000",
//			AccessKeyID:     "access",
//			SecretAccessKey: "secret",
//			BucketName:      "documents",
//			CreateBucket:    true,
//		},
//	})
//	if err != nil {
//		return err
//	}
//
//	err = docs.UploadDocument(ctx, encoded, "invoices/2024-001.pdf")
//	encoded, err = docs.DownloadDocument(ctx, "invoices/2024-001.pdf")
//	err = docs.DeleteDocument(ctx, "invoices/2024-001.pdf")
//
// Any other client name fails with ErrNoClient.
package remotedoc
