// Package jobfile 读取批量下载任务文件（YAML），并按内置 JSON Schema 校验。
package jobfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"candlesync/internal/download"
	"candlesync/internal/pkg/symbol"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// Job 是任务文件中的一项。
type Job struct {
	Market    string `yaml:"market" json:"market"`
	Timeframe string `yaml:"timeframe" json:"timeframe"`
	Since     int64  `yaml:"since" json:"since"`
	Limit     int    `yaml:"limit" json:"limit"`
}

// Request 转换为下载请求。
func (j Job) Request() download.Request {
	return download.Request{Market: j.Market, Timeframe: j.Timeframe, Since: j.Since, Limit: j.Limit}
}

// File 映射任务文件顶层结构。
type File struct {
	Downloads []Job `yaml:"downloads" json:"downloads"`
}

var compiledSchema = mustCompile(schemaJSON)

func mustCompile(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("jobs.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("jobs.json")
}

// Read 读取并解析任务文件。
func Read(path string) ([]Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file failed: %w", err)
	}
	jobs, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// Parse 严格解码（未知字段报错），再做 schema 校验与交易对归一化。
func Parse(raw []byte) ([]Job, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse jobs file failed: %w", err)
	}
	doc, err := json.Marshal(file)
	if err != nil {
		return nil, err
	}
	var inst any
	jd := json.NewDecoder(bytes.NewReader(doc))
	jd.UseNumber()
	if err := jd.Decode(&inst); err != nil {
		return nil, fmt.Errorf("decode jobs document: %w", err)
	}
	if err := compiledSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("jobs file invalid: %w", err)
	}
	out := make([]Job, 0, len(file.Downloads))
	for i, job := range file.Downloads {
		norm := symbol.Normalize(job.Market)
		if norm == "" {
			return nil, fmt.Errorf("downloads[%d]: invalid market %q", i, job.Market)
		}
		job.Market = norm
		out = append(out, job)
	}
	return out, nil
}
