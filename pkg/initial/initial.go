// Package initial opens the external connections the server runs on.
package initial

import (
	"context"
	"crypto/tls"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"lms-progress/pkg/config"
	"lms-progress/pkg/models"
	"lms-progress/pkg/search"
	"log/slog"
	"net/http"
)

func ConnectDB(cfg config.DB, logger *slog.Logger) (*gorm.DB, error) {
	logger.Info("connecting to postgres", "host", cfg.Host, "db", cfg.Name, "port", cfg.Port)
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return db, nil
}

// Migrate creates or updates every table the services use.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.CourseStudent{},
		&models.Chapter{},
		&models.Quiz{},
		&models.Question{},
		&models.CourseRating{},
		&models.StudentProgress{},
		&models.CompletedChapter{},
		&models.QuizAttempt{},
		&models.EnrollmentRequest{},
	)
	return errors.Wrap(err, "migrate")
}

func NewElasticsearch(cfg config.Elastic) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Address},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "elasticsearch client")
	}
	return client, nil
}

// Reindex pushes every stored course into the search index.
func Reindex(ctx context.Context, db *gorm.DB, index *search.Client, logger *slog.Logger) error {
	var courses []models.Course
	if err := db.WithContext(ctx).Find(&courses).Error; err != nil {
		return errors.Wrap(err, "load courses")
	}
	for i := range courses {
		if err := index.IndexCourse(ctx, &courses[i]); err != nil {
			logger.Warn("reindex course", "course_id", courses[i].ID, "error", err)
		}
	}
	logger.Info("search index rebuilt", "courses", len(courses))
	return nil
}

func NewMinio(cfg config.Minio) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}
	return client, nil
}
