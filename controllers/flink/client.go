/*
Copyright 2019 Google LLC.

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

// Package flink is the REST client for running Flink clusters.
package flink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Savepoint operation states reported by the REST API.
const (
	SavepointStateInProgress = "IN_PROGRESS"
	SavepointStateCompleted  = "COMPLETED"
	SavepointStateFailed     = "FAILED"
)

// Client - Flink API client.
type Client struct {
	log        *zap.Logger
	httpClient *http.Client
}

// RequestFlinkRestApiErr wraps any failed call against the Flink REST API.
type RequestFlinkRestApiErr struct {
	Msg   string
	Cause error
}

func (e *RequestFlinkRestApiErr) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("flink rest api request failed: %s: %s", e.Msg, e.Cause)
	}
	return fmt.Sprintf("flink rest api request failed: %s", e.Msg)
}

func (e *RequestFlinkRestApiErr) Unwrap() error { return e.Cause }

func restErr(msg string, cause error) error {
	return &RequestFlinkRestApiErr{Msg: msg, Cause: cause}
}

type responseError struct {
	StatusCode int
	Status     string
}

func (e *responseError) Error() string {
	return e.Status
}

type roundTripper struct {
	Proxied http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (res *http.Response, e error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "flink-operator")
	resp, err := rt.Proxied.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &responseError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return resp, nil
}

func parseJson(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		err = json.Unmarshal(body, out)
	}
	return err
}

// Job defines Flink job status.
type Job struct {
	Id        string `json:"jid"`
	State     string `json:"state"`
	Name      string `json:"name"`
	StartTime int64  `json:"start-time"`
	EndTime   int64  `json:"end-time"`
	Duration  int64  `json:"duration"`
}

// JobsOverview defines Flink job overview list.
type JobsOverview struct {
	Jobs []Job `json:"jobs"`
}

type JobByStartTime []Job

func (jst JobByStartTime) Len() int           { return len(jst) }
func (jst JobByStartTime) Swap(i, j int)      { jst[i], jst[j] = jst[j], jst[i] }
func (jst JobByStartTime) Less(i, j int) bool { return jst[i].StartTime > jst[j].StartTime }

// metricValue is one cell of a ?get= metrics response.
type metricValue struct {
	Id    string `json:"id"`
	Value string `json:"value"`
}

// SavepointTriggerID defines trigger ID of an async savepoint operation.
type SavepointTriggerID struct {
	RequestID string `json:"request-id"`
}

// SavepointFailureCause defines the cause of savepoint failure.
type SavepointFailureCause struct {
	ExceptionClass string `json:"class"`
	StackTrace     string `json:"stack-trace"`
}

// SavepointStatus defines savepoint status of a job.
type SavepointStatus struct {
	// Flink job ID.
	JobID string
	// Savepoint operation trigger ID.
	TriggerID string
	// One of IN_PROGRESS, COMPLETED, FAILED.
	State string
	// Savepoint location URI, non-empty when savepoint succeeded.
	Location string
	// Cause of the failure, non-empty when savepoint failed.
	FailureCause SavepointFailureCause
}

func (s *SavepointStatus) InProgress() bool { return s.State == SavepointStateInProgress }

func (s *SavepointStatus) IsSuccessful() bool {
	return s.State == SavepointStateCompleted && s.FailureCause.StackTrace == ""
}

func (s *SavepointStatus) IsFailed() bool {
	return s.State == SavepointStateFailed ||
		(s.State == SavepointStateCompleted && s.FailureCause.StackTrace != "")
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	return parseJson(resp, out)
}

// GetJobManagerMetrics fetches the raw jobmanager metric values for the
// requested keys.
func (c *Client) GetJobManagerMetrics(ctx context.Context, apiBaseURL string, keys []string) (map[string]string, error) {
	var raw []metricValue
	u := fmt.Sprintf("%s/jobmanager/metrics?get=%s", apiBaseURL, url.QueryEscape(strings.Join(keys, ",")))
	if err := c.get(ctx, u, &raw); err != nil {
		return nil, restErr("get jobmanager metrics", err)
	}
	return metricsToMap(raw), nil
}

// ListTaskManagers lists the taskmanager ids of the cluster.
func (c *Client) ListTaskManagers(ctx context.Context, apiBaseURL string) ([]string, error) {
	var ids struct {
		TaskManagers []struct {
			Id string `json:"id"`
		} `json:"taskmanagers"`
	}
	if err := c.get(ctx, apiBaseURL+"/taskmanagers", &ids); err != nil {
		return nil, restErr("list taskmanagers", err)
	}
	out := make([]string, 0, len(ids.TaskManagers))
	for _, tm := range ids.TaskManagers {
		out = append(out, tm.Id)
	}
	return out, nil
}

// GetTaskManagerMetrics fetches the raw metric values of one taskmanager.
func (c *Client) GetTaskManagerMetrics(ctx context.Context, apiBaseURL, tmId string, keys []string) (map[string]string, error) {
	var raw []metricValue
	u := fmt.Sprintf("%s/taskmanagers/%s/metrics?get=%s", apiBaseURL, tmId, url.QueryEscape(strings.Join(keys, ",")))
	if err := c.get(ctx, u, &raw); err != nil {
		return nil, restErr("get taskmanager metrics", err)
	}
	return metricsToMap(raw), nil
}

// GetJobMetrics fetches the raw metric values of one job.
func (c *Client) GetJobMetrics(ctx context.Context, apiBaseURL, jobId string, keys []string) (map[string]string, error) {
	var raw []metricValue
	u := fmt.Sprintf("%s/jobs/%s/metrics?get=%s", apiBaseURL, jobId, url.QueryEscape(strings.Join(keys, ",")))
	if err := c.get(ctx, u, &raw); err != nil {
		return nil, restErr("get job metrics", err)
	}
	return metricsToMap(raw), nil
}

func metricsToMap(raw []metricValue) map[string]string {
	m := make(map[string]string, len(raw))
	for _, mv := range raw {
		m[mv.Id] = mv.Value
	}
	return m
}

// ListJobIds lists the job ids known to the cluster.
func (c *Client) ListJobIds(ctx context.Context, apiBaseURL string) ([]string, error) {
	var resp struct {
		Jobs []struct {
			Id string `json:"id"`
		} `json:"jobs"`
	}
	if err := c.get(ctx, apiBaseURL+"/jobs", &resp); err != nil {
		return nil, restErr("list jobs", err)
	}
	out := make([]string, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		out = append(out, j.Id)
	}
	return out, nil
}

// GetJobsOverview fetches the job overview rows, newest first.
func (c *Client) GetJobsOverview(ctx context.Context, apiBaseURL string) (*JobsOverview, error) {
	jobsOverview := &JobsOverview{}
	if err := c.get(ctx, apiBaseURL+"/jobs/overview", jobsOverview); err != nil {
		return nil, restErr("get jobs overview", err)
	}

	sort.Sort(JobByStartTime(jobsOverview.Jobs))

	return jobsOverview, nil
}

// UploadJar pushes a local jar to the cluster and returns the jar id, the
// basename of the path the cluster stored it under.
func (c *Client) UploadJar(ctx context.Context, apiBaseURL, localJarPath string) (string, error) {
	file, err := os.Open(localJarPath)
	if err != nil {
		return "", restErr("open jar for upload", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="jarfile"; filename="%s"`, filepath.Base(localJarPath)))
	header.Set("Content-Type", "application/java-archive")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", restErr("build jar upload request", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", restErr("read jar for upload", err)
	}
	if err := writer.Close(); err != nil {
		return "", restErr("build jar upload request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBaseURL+"/jars/upload", &buf)
	if err != nil {
		return "", restErr("build jar upload request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", restErr("upload jar", err)
	}
	var uploaded struct {
		Filename string `json:"filename"`
	}
	if err := parseJson(resp, &uploaded); err != nil {
		return "", restErr("decode jar upload response", err)
	}
	segments := strings.Split(uploaded.Filename, "/")
	return segments[len(segments)-1], nil
}

// RunJarReq is the body of POST /jars/<jarId>/run.
type RunJarReq struct {
	EntryClass            *string  `json:"entry-class,omitempty"`
	ProgramArgsList       []string `json:"programArgs,omitempty"`
	Parallelism           *int     `json:"parallelism,omitempty"`
	SavepointPath         *string  `json:"savepointPath,omitempty"`
	RestoreMode           *string  `json:"restoreMode,omitempty"`
	AllowNonRestoredState *bool    `json:"allowNonRestoredState,omitempty"`
}

// RunJar starts an uploaded jar and returns the new job id.
func (c *Client) RunJar(ctx context.Context, apiBaseURL, jarId string, spec RunJarReq) (string, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return "", restErr("encode jar run request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/jars/%s/run", apiBaseURL, jarId), bytes.NewReader(body))
	if err != nil {
		return "", restErr("build jar run request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", restErr("run jar "+jarId, err)
	}
	var out struct {
		JobId string `json:"jobid"`
	}
	if err := parseJson(resp, &out); err != nil {
		return "", restErr("decode jar run response", err)
	}
	return out.JobId, nil
}

// DeleteJar removes an uploaded jar. Cleanup is best effort, failures are
// only logged.
func (c *Client) DeleteJar(ctx context.Context, apiBaseURL, jarId string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/jars/%s", apiBaseURL, jarId), nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("jar cleanup failed", zap.String("jarId", jarId), zap.Error(err))
		return
	}
	resp.Body.Close()
}

// StopJob stops a job with a savepoint. The optional savepointDir overrides
// the cluster default; the returned trigger id watches the savepoint.
func (c *Client) StopJob(ctx context.Context, apiBaseURL, jobID, savepointDir string) (string, error) {
	u := fmt.Sprintf("%s/jobs/%s?mode=stop", apiBaseURL, jobID)
	if savepointDir != "" {
		u += "&targetDirectory=" + url.QueryEscape(savepointDir)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, nil)
	if err != nil {
		return "", restErr("build stop request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", restErr("stop job "+jobID, err)
	}
	triggerID := &SavepointTriggerID{}
	if err := parseJson(resp, triggerID); err != nil {
		// older clusters reply with an empty body
		return "", nil
	}
	return triggerID.RequestID, nil
}

// CancelJob cancels a job without taking a savepoint.
func (c *Client) CancelJob(ctx context.Context, apiBaseURL, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/jobs/%s?mode=cancel", apiBaseURL, jobID), nil)
	if err != nil {
		return restErr("build cancel request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return restErr("cancel job "+jobID, err)
	}
	resp.Body.Close()
	return nil
}

// TriggerSavepoint triggers an async savepoint operation.
func (c *Client) TriggerSavepoint(ctx context.Context, apiBaseURL, jobID, dir string, cancel bool) (*SavepointTriggerID, error) {
	u := fmt.Sprintf("%s/jobs/%s/savepoints", apiBaseURL, jobID)
	body, err := json.Marshal(map[string]any{
		"target-directory": dir,
		"cancel-job":       cancel,
	})
	if err != nil {
		return nil, restErr("encode savepoint request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, restErr("build savepoint request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, restErr("trigger savepoint for "+jobID, err)
	}

	triggerID := &SavepointTriggerID{}
	if err := parseJson(resp, triggerID); err != nil {
		return nil, restErr("decode savepoint trigger response", err)
	}
	return triggerID, nil
}

// GetSavepointStatus returns savepoint status.
//
// Flink API response examples:
//
// 1) success:
//
//	{
//	   "status":{"id":"COMPLETED"},
//	   "operation":{
//	     "location":"s3p://bucket/savepoints/savepoint-ad4025-dd46c1bd1c80"
//	   }
//	}
//
// 2) failure:
//
//	{
//	   "status":{"id":"COMPLETED"},
//	   "operation":{
//	     "failure-cause":{
//	       "class": "java.util.concurrent.CompletionException",
//	       "stack-trace": "..."
//	     }
//	   }
//	}
func (c *Client) GetSavepointStatus(ctx context.Context, apiBaseURL, jobID, triggerID string) (*SavepointStatus, error) {
	u := fmt.Sprintf("%s/jobs/%s/savepoints/%s", apiBaseURL, jobID, triggerID)
	status := &SavepointStatus{JobID: jobID, TriggerID: triggerID}
	var root struct {
		Status struct {
			Id string `json:"id"`
		} `json:"status"`
		Operation map[string]*json.RawMessage `json:"operation"`
	}
	if err := c.get(ctx, u, &root); err != nil {
		return nil, restErr("get savepoint status", err)
	}

	status.State = root.Status.Id
	if location, ok := root.Operation["location"]; ok && location != nil {
		if err := json.Unmarshal(*location, &status.Location); err != nil {
			return nil, restErr("decode savepoint location", err)
		}
	}
	if failureCause, ok := root.Operation["failure-cause"]; ok && failureCause != nil {
		if err := json.Unmarshal(*failureCause, &status.FailureCause); err != nil {
			return nil, restErr("decode savepoint failure cause", err)
		}
		status.State = SavepointStateFailed
	}
	return status, nil
}

func NewDefaultClient(log *zap.Logger) *Client {
	return NewClient(log, &http.Client{})
}

func NewClient(log *zap.Logger, httpClient *http.Client) *Client {
	if httpClient.Transport == nil {
		httpClient.Transport = http.DefaultTransport
	}
	httpClient.Transport = &roundTripper{Proxied: httpClient.Transport}

	return &Client{log: log, httpClient: httpClient}
}
