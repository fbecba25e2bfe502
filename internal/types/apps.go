package types

// AppInfo is the OS-reported description of one installed package, as
// returned by the app-directory provider.
type AppInfo struct {
	PackageName      string `json:"packageName"`
	AppName          string `json:"appName"`
	VersionName      string `json:"versionName"`
	VersionCode      int64  `json:"versionCode"`
	FirstInstallTime int64  `json:"firstInstallTime"` // unix milliseconds
	LastUpdateTime   int64  `json:"lastUpdateTime"`   // unix milliseconds
	IsSystemApp      bool   `json:"isSystemApp"`
	Icon             string `json:"icon,omitempty"`
}

// InstalledApp is the persisted directory record for one package. Records are
// soft-deleted: when a package disappears from the OS list the row is
// tombstoned (IsDeleted=true), never removed, so historical usage rows keep a
// valid reference.
type InstalledApp struct {
	ID               int64  `json:"id"`
	PackageName      string `json:"packageName"`
	AppName          string `json:"appName"`
	VersionName      string `json:"versionName"`
	VersionCode      int64  `json:"versionCode"`
	FirstInstallTime int64  `json:"firstInstallTime"`
	LastUpdateTime   int64  `json:"lastUpdateTime"`
	IsSystemApp      bool   `json:"isSystemApp"`
	Icon             string `json:"icon,omitempty"`
	IsDeleted        bool   `json:"isDeleted"`
	LastSyncTime     int64  `json:"lastSyncTime"` // unix milliseconds
}

// DirectorySyncResult summarizes one reconciliation pass over the directory.
type DirectorySyncResult struct {
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Resurrected int `json:"resurrected"`
	Tombstoned  int `json:"tombstoned"`
}
