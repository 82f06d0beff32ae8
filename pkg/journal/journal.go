package journal

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
)

// fileMode rw-r--r-- 一般日誌檔權限
const fileMode fs.FileMode = 0644

// Journal 追加式 JSON 日誌檔
// 每筆紀錄一行 JSON，寫入後立刻 fsync
// 用途: 通知派送的 dead letter 落地，供營運端重放或稽查
type Journal struct {
	file *os.File
	mu   sync.Mutex
}

// Open 開啟或建立日誌檔
// O_APPEND 每次寫入自動跳到檔尾 O_CREATE 不存在則建立
func Open(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, fileMode)
	if err != nil {
		return nil, err
	}
	return &Journal{file: file}, nil
}

// Write 追加一筆紀錄並刷入硬碟
func (j *Journal) Write(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := json.NewEncoder(j.file).Encode(v); err != nil {
		return err
	}
	return j.file.Sync()
}

// ReadAll 從頭讀取所有紀錄，逐筆交給 callback
// 以串流方式處理，避免一次把整個檔案載入記憶體
func (j *Journal) ReadAll(callback func(raw []byte) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(j.file)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if err := callback(raw); err != nil {
			return err
		}
	}
	return nil
}

// Close 關閉檔案
func (j *Journal) Close() error {
	return j.file.Close()
}
