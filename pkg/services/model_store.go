package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
)

// ErrModelNotFound 指定された製品の学習済みモデルが存在しないことを示す。
// アーティファクトの欠損と破損はどちらもこのエラーに集約される。
var ErrModelNotFound = errors.New("学習済みモデルが見つかりません")

// storedModel 1製品分の回帰モデルアーティファクト
type storedModel struct {
	ProductID string                 `json:"productId"`
	Forest    *RandomForestRegressor `json:"forest"`
}

// storedScaler 1製品分のスケーラーアーティファクト
type storedScaler struct {
	ProductID string          `json:"productId"`
	Scaler    *StandardScaler `json:"scaler"`
}

// ModelStore 製品IDをキーに（回帰モデル, スケーラー）のペアをローカルディスクに
// 永続化するストア。書き込みはtemp+renameでアトミックに行い、同一製品IDの
// save/loadは製品IDごとのミューテックスで直列化する。
type ModelStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewModelStore 保存先ディレクトリを作成してストアを初期化する。
// ディレクトリ作成はプロセス起動時にここで一度だけ行う。
func NewModelStore(dir string) (*ModelStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("モデルディレクトリの作成に失敗しました: %w", err)
	}
	return &ModelStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Save 製品IDのモデルとスケーラーを保存する。既存のアーティファクトは上書きされる。
func (s *ModelStore) Save(productID string, forest *RandomForestRegressor, scaler *StandardScaler) error {
	lock := s.keyLock(productID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.writeArtifact(s.modelPath(productID), storedModel{ProductID: productID, Forest: forest}); err != nil {
		return fmt.Errorf("モデルの保存に失敗しました: %w", err)
	}
	if err := s.writeArtifact(s.scalerPath(productID), storedScaler{ProductID: productID, Scaler: scaler}); err != nil {
		return fmt.Errorf("スケーラーの保存に失敗しました: %w", err)
	}
	return nil
}

// Load 製品IDのモデルとスケーラーを読み込む。
// アーティファクトが存在しない場合もデシリアライズに失敗した場合も
// ErrModelNotFoundを返す（「使えるモデルが無い」という単一のケースに集約）。
func (s *ModelStore) Load(productID string) (*RandomForestRegressor, *StandardScaler, error) {
	lock := s.keyLock(productID)
	lock.Lock()
	defer lock.Unlock()

	var model storedModel
	if err := s.readArtifact(s.modelPath(productID), &model); err != nil || model.Forest == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrModelNotFound, productID)
	}
	var scaler storedScaler
	if err := s.readArtifact(s.scalerPath(productID), &scaler); err != nil || scaler.Scaler == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrModelNotFound, productID)
	}
	return model.Forest, scaler.Scaler, nil
}

// keyLock 製品IDごとのミューテックスを返す（無ければ作成）
func (s *ModelStore) keyLock(productID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lock, ok := s.locks[productID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[productID] = lock
	return lock
}

func (s *ModelStore) modelPath(productID string) string {
	return filepath.Join(s.dir, "model_"+artifactKey(productID)+".json")
}

func (s *ModelStore) scalerPath(productID string) string {
	return filepath.Join(s.dir, "scaler_"+artifactKey(productID)+".json")
}

// writeArtifact JSONを一時ファイルに書き出してからrenameする。
// 読み手が書きかけのファイルを観測しないようにするため。
func (s *ModelStore) writeArtifact(path string, v interface{}) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *ModelStore) readArtifact(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// artifactKey 製品IDをファイル名として安全なキーに変換する。
// 英数字と「.」「_」「-」以外は「_」に置換し、置換が発生した場合は
// 衝突を避けるためFNVハッシュのサフィックスを付ける。
// パストラバーサル対策として「.」「..」もハッシュ付きに倒す。
func artifactKey(productID string) string {
	safe := make([]rune, 0, len(productID))
	modified := false
	for _, r := range productID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			safe = append(safe, r)
		default:
			safe = append(safe, '_')
			modified = true
		}
	}
	key := string(safe)
	if key == "" || key == "." || key == ".." {
		modified = true
	}
	if modified {
		h := fnv.New32a()
		h.Write([]byte(productID))
		key = fmt.Sprintf("%s-%08x", key, h.Sum32())
	}
	return key
}
