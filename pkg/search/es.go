// Package search keeps an Elasticsearch index of the course catalog.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/pkg/errors"
	"lms-progress/pkg/models"
	"strings"
)

const DefaultIndex = "courses"

// Document is the indexed form of a course.
type Document struct {
	ID             uint     `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Difficulty     string   `json:"difficulty"`
	EstimatedHours int      `json:"estimated_hours"`
	Tags           []string `json:"tags"`
	TeacherID      uint     `json:"teacher_id"`
}

func NewDocument(c *models.Course) Document {
	return Document{
		ID:             c.ID,
		Title:          c.Title,
		Description:    c.Description,
		Difficulty:     c.Difficulty,
		EstimatedHours: c.EstimatedHours,
		Tags:           append([]string(nil), c.Tags...),
		TeacherID:      c.TeacherID,
	}
}

type Client struct {
	es    *elasticsearch.Client
	index string
}

func New(es *elasticsearch.Client, index string) *Client {
	if index == "" {
		index = DefaultIndex
	}
	return &Client{es: es, index: index}
}

func (c *Client) IndexCourse(ctx context.Context, course *models.Course) error {
	data, err := json.Marshal(NewDocument(course))
	if err != nil {
		return errors.Wrap(err, "encode course document")
	}
	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(fmt.Sprint(course.ID)),
		c.es.Index.WithRefresh("true"),
	)
	if err != nil {
		return errors.Wrapf(err, "index course %d", course.ID)
	}
	defer res.Body.Close()
	return responseErr(res, "index course")
}

func (c *Client) DeleteCourse(ctx context.Context, id uint) error {
	res, err := c.es.Delete(c.index, fmt.Sprint(id), c.es.Delete.WithContext(ctx), c.es.Delete.WithRefresh("true"))
	if err != nil {
		return errors.Wrapf(err, "delete course %d", id)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return nil
	}
	return responseErr(res, "delete course")
}

// SearchCourses matches query as a case-insensitive substring of the title,
// description or tags.
func (c *Client) SearchCourses(ctx context.Context, query string) ([]Document, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(courseQuery(query)); err != nil {
		return nil, errors.Wrap(err, "encode search query")
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "search courses")
	}
	defer res.Body.Close()
	if err := responseErr(res, "search courses"); err != nil {
		return nil, err
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}
	out := make([]Document, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func courseQuery(query string) map[string]interface{} {
	query = strings.TrimSpace(query)
	if query == "" {
		return map[string]interface{}{"query": map[string]interface{}{"match_all": map[string]interface{}{}}}
	}
	wildcard := func(field string) map[string]interface{} {
		return map[string]interface{}{
			"wildcard": map[string]interface{}{
				field: map[string]interface{}{
					"value":            "*" + query + "*",
					"case_insensitive": true,
				},
			},
		}
	}
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					wildcard("title"),
					wildcard("description"),
					wildcard("tags"),
				},
				"minimum_should_match": 1,
			},
		},
	}
}

func responseErr(res *esapi.Response, op string) error {
	if res.IsError() {
		return errors.Errorf("%s: elasticsearch error: %s", op, res.String())
	}
	return nil
}
