// Package storage archiva las respuestas crudas del SII en almacenamiento de objetos.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/config"
)

// objectAPI subconjunto del cliente S3 que usa el archivo.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive guarda cada respuesta como objeto bajo <prefix>/<tenant>/<key>.
// Compatible con AWS S3 y MinIO (S3_ENDPOINT + path-style).
type S3Archive struct {
	client objectAPI
	bucket string
	prefix string
}

// NewS3Archive construye el archivo con la cadena de credenciales por defecto de AWS.
func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("storage: bucket requerido")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("storage: configuración AWS: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archive(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func newS3Archive(client objectAPI, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

func (a *S3Archive) objectKey(tenantID, key string) string {
	return path.Join(a.prefix, tenantID, key)
}

// Put sube el cuerpo y devuelve la referencia s3://bucket/key.
func (a *S3Archive) Put(ctx context.Context, tenantID, key string, body []byte) (string, error) {
	objKey := a.objectKey(tenantID, key)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/xml"),
	})
	if err != nil {
		return "", fmt.Errorf("storage: subir %s: %w", objKey, err)
	}
	return "s3://" + a.bucket + "/" + objKey, nil
}

// Get descarga una respuesta archivada.
func (a *S3Archive) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	objKey := a.objectKey(tenantID, key)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: storage: descargar %s: %v", domain.ErrNotFound, objKey, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
