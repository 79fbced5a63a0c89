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

package v1

import "fmt"

// SetDefault sets default values for unspecified FlinkClusterDef properties.
func SetDefault(def *FlinkClusterDef) {
	if def.Mode == "" {
		if def.IsApplicationMode() {
			def.Mode = ModeApplication
		} else {
			def.Mode = ModeSession
		}
	}
	if def.FlinkVer == "" {
		def.FlinkVer = V1_17
	}
	if def.Image == "" {
		def.Image = fmt.Sprintf("flink:%s", def.FlinkVer)
	}
	if def.RestExportType == "" {
		def.RestExportType = RestExportClusterIP
	}
	if def.RestartStg.Type == "" {
		def.RestartStg.Type = RestartStgNone
	}
	if def.Job != nil && def.Job.JobName == "" {
		def.Job.JobName = def.Fcid.ClusterId
	}
}

// Validate rejects definitions the launcher cannot possibly accept.
func Validate(def *FlinkClusterDef) error {
	if def.Fcid.ClusterId == "" || def.Fcid.Namespace == "" {
		return fmt.Errorf("fcid requires both clusterId and namespace, got %+v", def.Fcid)
	}
	if def.Mode == ModeApplication && def.Job == nil {
		return fmt.Errorf("application mode requires a job definition: %s", def.Fcid)
	}
	if def.Mode == ModeSession && def.Job != nil {
		return fmt.Errorf("session mode cannot carry a job definition: %s", def.Fcid)
	}
	if def.Job != nil && def.Job.JobJar == "" {
		return fmt.Errorf("application cluster requires jobJar: %s", def.Fcid)
	}
	return nil
}
