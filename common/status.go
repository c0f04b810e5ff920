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
package common

// SRVStatus 服务生命周期状态
type SRVStatus int

const (
	CREATE_JUST SRVStatus = iota
	RUNNING
	SHUTDOWN_ALREADY
	START_FAILED
)

func (status SRVStatus) String() string {
	switch status {
	case CREATE_JUST:
		return "CREATE_JUST"
	case RUNNING:
		return "RUNNING"
	case SHUTDOWN_ALREADY:
		return "SHUTDOWN_ALREADY"
	case START_FAILED:
		return "START_FAILED"
	default:
		return "Unknow"
	}
}

type FindBrokerResult struct {
	BrokerAddr string
	Slave      bool
}
