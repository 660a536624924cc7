/*
Copyright 2025 Tandem Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package backups

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tandemhq/tandem/config"
)

// S3Uploader is the subset of the S3 client used here, split out so tests can
// substitute a fake.
type S3Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BackupManager runs pg_dump snapshots of the Tandem database and optionally
// ships zipped snapshots to S3.
type BackupManager struct {
	Config   *config.Configuration
	S3Client S3Uploader
}

func NewBackupManager(cnf *config.Configuration) *BackupManager {
	return &BackupManager{Config: cnf}
}

// BackupToDisk dumps the database to <backup dir>/<date>/tandem-<time>-backup.sql
// and returns the file path.
func (bm *BackupManager) BackupToDisk(ctx context.Context) (string, error) {
	if bm.Config == nil {
		return "", fmt.Errorf("backup config is nil")
	}

	db, err := sql.Open("postgres", bm.Config.DataSource.Dns)
	if err != nil {
		return "", fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return "", fmt.Errorf("failed to ping database: %w", err)
	}

	parsedURL, err := url.Parse(bm.Config.DataSource.Dns)
	if err != nil {
		return "", fmt.Errorf("failed to parse data source DNS: %w", err)
	}

	dbHost, dbPort, err := net.SplitHostPort(parsedURL.Host)
	if err != nil {
		return "", fmt.Errorf("failed to split host and port: %w", err)
	}
	dbUser := parsedURL.User.Username()
	dbPassword, _ := parsedURL.User.Password()
	dbName := strings.TrimPrefix(parsedURL.Path, "/")
	if dbName == "" {
		dbName = "tandem"
	}

	today := time.Now().Format("2006-01-02")
	currentTime := time.Now().Format("150405")
	backupDir := filepath.Join(bm.Config.Backup.Dir, today)
	if err := os.MkdirAll(backupDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupFilePath := filepath.Join(backupDir, fmt.Sprintf("tandem-%s-backup.sql", currentTime))
	cmd := exec.CommandContext(ctx, "pg_dump", "-U", dbUser, "-d", dbName, "-f", backupFilePath)
	cmd.Env = append(os.Environ(), "PGHOST="+dbHost, "PGPORT="+dbPort, "PGUSER="+dbUser, "PGPASSWORD="+dbPassword)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pg_dump failed: %w: %s", err, stderr.String())
	}

	return backupFilePath, nil
}

// BackupToS3 dumps the database to disk, zips the day's backup directory and
// uploads the archive.
func (bm *BackupManager) BackupToS3(ctx context.Context) error {
	backupFilePath, err := bm.BackupToDisk(ctx)
	if err != nil {
		return fmt.Errorf("failed to backup to disk: %w", err)
	}

	dirToZip := filepath.Dir(backupFilePath)
	zipFile := filepath.Base(dirToZip) + ".zip"
	if err := zipDir(dirToZip, zipFile); err != nil {
		return fmt.Errorf("failed to zip backup directory: %w", err)
	}
	defer os.Remove(zipFile)

	client, err := bm.s3Client(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(zipFile)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bm.Config.Backup.S3Bucket),
		Key:    aws.String(zipFile),
		Body:   file,
	})
	return err
}

func (bm *BackupManager) s3Client(ctx context.Context) (S3Uploader, error) {
	if bm.S3Client != nil {
		return bm.S3Client, nil
	}

	backup := bm.Config.Backup
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(backup.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(backup.AwsAccessKeyID, backup.AwsSecretAccessKey, "")),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

func zipDir(srcDir, destZip string) error {
	zipFile, err := os.Create(destZip)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	writer := zip.NewWriter(zipFile)
	defer writer.Close()

	return filepath.Walk(srcDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, filePath)
		if err != nil {
			return err
		}
		zipFileWriter, err := writer.Create(relPath)
		if err != nil {
			return err
		}

		srcFile, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer srcFile.Close()

		_, err = io.Copy(zipFileWriter, srcFile)
		return err
	})
}
