// Package csvfile 将序列保存为 CSV 文件，文件名由下载参数决定。
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"candlesync/internal/logger"
	"candlesync/internal/market"
	"candlesync/internal/store"

	"github.com/shopspring/decimal"
)

var header = []string{"timestamp", "open", "high", "low", "close", "volume"}

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data dir 不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Path 返回 key 对应的文件路径。
func (s *Store) Path(key store.Key) string {
	return filepath.Join(s.dir, key.FileName())
}

func (s *Store) Load(ctx context.Context, key store.Key) (market.Series, error) {
	f, err := os.Open(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return market.Series{}, store.ErrCacheMiss
	}
	if err != nil {
		return market.Series{}, err
	}
	defer f.Close()
	candles, err := Read(f)
	if err != nil {
		return market.Series{}, fmt.Errorf("%s: %w", key.FileName(), err)
	}
	return market.Series{Market: key.Market, Timeframe: key.Timeframe, Candles: candles}, nil
}

// Save 先写临时文件再重命名，避免中断时留下半个文件。
func (s *Store) Save(ctx context.Context, key store.Key, series market.Series) error {
	if err := key.Validate(); err != nil {
		return err
	}
	path := s.Path(key)
	tmp, err := os.CreateTemp(s.dir, ".candles-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, series.Candles); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	logger.Infof("[store] 已写入 %s (%d 行)", path, len(series.Candles))
	return nil
}

// Write 输出带表头的 CSV；价格按 decimal 原文写出，结果可逐字节复现。
func Write(w io.Writer, candles []market.Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, c := range candles {
		row[0] = strconv.FormatInt(c.Timestamp, 10)
		row[1] = c.Open.String()
		row[2] = c.High.String()
		row[3] = c.Low.String()
		row[4] = c.Close.String()
		row[5] = c.Volume.String()
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func Read(r io.Reader) ([]market.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	first, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, err
	}
	for i, col := range header {
		if first[i] != col {
			return nil, fmt.Errorf("unexpected header %v", first)
		}
	}
	var out []market.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		c, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseRow(rec []string) (market.Candle, error) {
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	vals := make([]decimal.Decimal, 5)
	for i := range vals {
		d, err := decimal.NewFromString(rec[i+1])
		if err != nil {
			return market.Candle{}, fmt.Errorf("%s: %w", header[i+1], err)
		}
		vals[i] = d
	}
	return market.Candle{Timestamp: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}
