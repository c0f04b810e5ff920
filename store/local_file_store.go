// Copyright 2017 luoji

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//    http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/boltmq/common/logger"
	"github.com/boltmq/common/message"
	"github.com/boltmq/consumer/common"
	"github.com/go-errors/errors"
)

const offsetStoreDirEnv = "BOLTMQ_OFFSET_STORE_DIR"

// LocalFileOffsetStore 广播消费模式下的本地位点存储，每个(clientId, group)一个
// json文件，key为队列标识topic@broker@id。写文件先写临时文件并fsync，再rename
// 原子替换。
type LocalFileOffsetStore struct {
	groupName     string
	storePath     string
	offsetTable   map[string]int64
	offsetTableMu sync.RWMutex
}

func NewLocalFileOffsetStore(clientId string, groupName string) *LocalFileOffsetStore {
	return &LocalFileOffsetStore{
		groupName:   groupName,
		storePath:   localOffsetStorePath(clientId, groupName),
		offsetTable: make(map[string]int64),
	}
}

func localOffsetStorePath(clientId string, groupName string) string {
	dir := os.Getenv(offsetStoreDirEnv)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".boltmq_offsets")
	}

	return filepath.Join(dir, clientId, groupName, "offsets.json")
}

func (store *LocalFileOffsetStore) Load() {
	table, err := store.readFromFile()
	if err != nil {
		logger.Warnf("load offset store from %s err: %s", store.storePath, err)
		return
	}

	store.offsetTableMu.Lock()
	for key, offset := range table {
		store.offsetTable[key] = offset
		logger.Infof("load consumer offset, group: %s %s %d", store.groupName, key, offset)
	}
	store.offsetTableMu.Unlock()
}

func (store *LocalFileOffsetStore) ReadOffset(mq *message.MessageQueue, rType ReadOffsetType) int64 {
	if mq == nil {
		return -1
	}

	switch rType {
	case READ_FROM_MEMORY:
		return store.readOffsetFromMemory(mq)
	case READ_FROM_STORE:
		return store.readOffsetFromFile(mq)
	case MEMORY_FIRST_THEN_STORE:
		if offset := store.readOffsetFromMemory(mq); offset >= 0 {
			return offset
		}
		return store.readOffsetFromFile(mq)
	default:
	}

	return -1
}

func (store *LocalFileOffsetStore) readOffsetFromMemory(mq *message.MessageQueue) int64 {
	store.offsetTableMu.RLock()
	defer store.offsetTableMu.RUnlock()

	offset, ok := store.offsetTable[common.QueueKey(mq)]
	if !ok {
		return -1
	}

	return offset
}

func (store *LocalFileOffsetStore) readOffsetFromFile(mq *message.MessageQueue) int64 {
	table, err := store.readFromFile()
	if err != nil {
		logger.Warnf("read offset from %s err: %s", store.storePath, err)
		return -1
	}

	offset, ok := table[common.QueueKey(mq)]
	if !ok {
		return -1
	}

	store.UpdateOffset(mq, offset, false)
	return offset
}

func (store *LocalFileOffsetStore) UpdateOffset(mq *message.MessageQueue, offset int64, increaseOnly bool) {
	if mq == nil {
		return
	}

	key := common.QueueKey(mq)
	store.offsetTableMu.Lock()
	old, ok := store.offsetTable[key]
	if !ok || !increaseOnly || offset > old {
		store.offsetTable[key] = offset
	}
	store.offsetTableMu.Unlock()
}

func (store *LocalFileOffsetStore) Persist(mq *message.MessageQueue) {
	if mq == nil {
		return
	}

	if store.readOffsetFromMemory(mq) < 0 {
		return
	}

	if err := store.writeToFile(); err != nil {
		logger.Errorf("persist offset of %s to %s err: %s", common.QueueKey(mq), store.storePath, err)
	}
}

func (store *LocalFileOffsetStore) PersistAll(mqs []*message.MessageQueue) {
	if len(mqs) == 0 {
		return
	}

	if err := store.writeToFile(); err != nil {
		logger.Errorf("persist all offsets to %s err: %s", store.storePath, err)
	}
}

func (store *LocalFileOffsetStore) RemoveOffset(mq *message.MessageQueue) {
	if mq == nil {
		return
	}

	store.offsetTableMu.Lock()
	delete(store.offsetTable, common.QueueKey(mq))
	store.offsetTableMu.Unlock()
}

func (store *LocalFileOffsetStore) cloneOffsetTable() map[string]int64 {
	store.offsetTableMu.RLock()
	defer store.offsetTableMu.RUnlock()

	table := make(map[string]int64, len(store.offsetTable))
	for key, offset := range store.offsetTable {
		table[key] = offset
	}

	return table
}

func (store *LocalFileOffsetStore) readFromFile() (map[string]int64, error) {
	data, err := os.ReadFile(store.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int64{}, nil
		}
		return nil, errors.Errorf("read offset file err: %s", err)
	}

	if len(data) == 0 {
		return map[string]int64{}, nil
	}

	table := make(map[string]int64)
	if err := common.Decode(data, &table); err != nil {
		return nil, errors.Errorf("decode offset file err: %s", err)
	}

	return table, nil
}

// 先写临时文件并fsync，再rename覆盖，保证进程崩溃不会留下半个文件
func (store *LocalFileOffsetStore) writeToFile() error {
	data, err := common.Encode(store.cloneOffsetTable())
	if err != nil {
		return errors.Errorf("encode offset table err: %s", err)
	}

	dir := filepath.Dir(store.storePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Errorf("create offset store dir %s err: %s", dir, err)
	}

	tmpPath := store.storePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Errorf("open offset tmp file %s err: %s", tmpPath, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return errors.Errorf("write offset tmp file %s err: %s", tmpPath, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return errors.Errorf("sync offset tmp file %s err: %s", tmpPath, err)
	}

	if err := file.Close(); err != nil {
		return errors.Errorf("close offset tmp file %s err: %s", tmpPath, err)
	}

	if err := os.Rename(tmpPath, store.storePath); err != nil {
		return errors.Errorf("rename offset tmp file %s err: %s", tmpPath, err)
	}

	return nil
}
